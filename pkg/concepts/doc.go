// Package concepts keeps the searchable concept index of each concept
// database and answers hierarchy queries over its parent to child map.
package concepts
