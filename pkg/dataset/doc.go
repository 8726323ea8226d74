// Package dataset parses uploaded dataset files into documents and keeps
// the stored file and the document rows of each dataset consistent.
package dataset
