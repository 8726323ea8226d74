// Package projectgroups keeps the projects of a project group in line
// with the group: one project per annotator, each carrying the group's
// dataset, model, filters, meta tasks and relations.
package projectgroups
