// Package keypath defines the document model of the object store and the
// pure functions that operate on it.
//
// Stored values are represented by the Value type, a closed tagged variant
// over scalars (null, bool, number, time, string, binary), arrays and
// string-keyed objects. Because the variant set is closed, key-path
// resolution and index fan-out can be written as total traversals with no
// reflection.
//
// Keys are represented by the Key type, a smaller variant restricted to the
// types that participate in the store's total order:
//
//	number < time < string < binary
//
// Values of any other kind are not valid keys and are rejected by
// KeyFromValue.
//
// A key path is a dot-separated sequence of object member names ("a.b.c").
// Resolution is performed by Extract; the inverse (writing a generated key
// back into a value) by Inject. IndexKeys combines resolution with the
// multi-entry fan-out rule used by secondary indices.
//
// All functions in this package are pure and allocate only for their return
// values. None of them are goroutine-aware; the engine serializes access.
package keypath
