package testutil

import (
	"fmt"
	"strings"

	"github.com/roach88/soupstore/internal/value"
)

// Employee returns the i-th document of a deterministic employee fixture.
func Employee(i int) value.Object {
	names := []string{"Ann", "Bob", "Cid", "Dee", "Eve", "Fay", "Gus", "Hal"}
	return value.Object{
		"name":     value.String(names[i%len(names)]),
		"employee": value.String(fmt.Sprintf("E%04d", i)),
		"age":      value.Int(25 + i%40),
		"salary":   value.Float(50000 + float64(i)*1250.5),
		"address": value.Object{
			"city": value.String([]string{"Oslo", "Lima", "Pune"}[i%3]),
		},
	}
}

// Employees returns the first n fixture documents.
func Employees(n int) []value.Object {
	out := make([]value.Object, n)
	for i := range out {
		out[i] = Employee(i)
	}
	return out
}

// LargeDocument returns a document whose serialized form exceeds size bytes.
func LargeDocument(name string, size int) value.Object {
	return value.Object{
		"name":    value.String(name),
		"payload": value.String(strings.Repeat("x", size)),
	}
}
