// Package deployment exports projects together with their datasets,
// models and annotations as one gzipped tarball, and imports such an
// archive into another trainer deployment.
//
// An archive holds a manifest.json describing the rows to recreate, an
// annotations.json in the annotation export format and a files/ tree with
// the dataset, concept database, vocab, model pack and cuis files. Ids in
// the manifest are those of the exporting deployment; import assigns new
// ones and remaps every reference.
package deployment
