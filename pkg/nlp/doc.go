// Package nlp is the concept recognition model behind the trainer.
//
// A CAT combines a concept database (CDB), a Vocab and optional MetaCAT
// classifiers. It links dictionary names found in text to concepts and
// learns from annotator feedback:
//
//	cdb, err := nlp.LoadCDB("/home/api/media/snomed.dat")
//	vocab, err := nlp.LoadVocab("/home/api/media/vocab.dat")
//	cat := nlp.NewCAT(cdb, vocab, nil)
//	for _, span := range cat.Annotate(text) {
//	    fmt.Println(span.CUI, span.Text, span.Acc)
//	}
//	cat.TrainPositive("C0018802", "heart failure")
//	cat.Save("/home/api/media/snomed.dat")
//
// # File formats
//
// CDB and Vocab files are JSON documents carrying a format_version. Files
// without one are the legacy v0 layout and fail with ErrLegacyModel.
//
// A model pack is a zip holding cdb.dat, vocab.dat and one meta_<task>
// directory per MetaCAT, each with a config.json.
package nlp
