// Package modelcache keeps concept models in memory between requests.
//
// Projects refer to their model either through a ConceptDB and Vocabulary
// pair or through a model pack. Loaded CATs are cached under
// "<cdb id>-<vocab id>" or "mp<model pack id>", and the CDBs and Vocabs of
// pair projects are cached by id so projects sharing a CDB share its
// training state.
//
// Each of the three caches holds at most MAX_MEDCAT_MODELS entries and
// evicts the least recently used one. Concurrent requests for a model that
// is not loaded yet wait on a single load.
package modelcache
