// Package pattern implements the resource pattern matcher used by
// policy rows: a query-stripping, slash-segmented matcher supporting a
// remainder wildcard segment "*" and named single-segment placeholders
// of the form "{name}".
package pattern
