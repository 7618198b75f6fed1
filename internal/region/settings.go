package region

import (
	"cmp"
	"fmt"
	"reflect"
)

// Settings carries the persistence-unit options regions and strategies consult.
type Settings struct {
	MinimalPutsEnabled       bool
	QueryCacheEnabled        bool
	StructuredEntriesEnabled bool
	RegionPrefix             string
}

// VersionComparator orders two versions: negative when a < b, zero when
// equal, positive when a > b.
type VersionComparator func(a, b any) int

// CacheDataDescription describes the data cached in a region.
type CacheDataDescription struct {
	Mutable           bool
	Versioned         bool
	VersionComparator VersionComparator
}

// NumericVersionComparator compares numeric versions by value, whatever their
// width, so versions stay comparable after a round trip through the cluster
// tier. Anything else is compared by its string form.
func NumericVersionComparator(a, b any) int {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case isInt(av) && isInt(bv):
		return cmp.Compare(av.Int(), bv.Int())
	case isUint(av) && isUint(bv):
		return cmp.Compare(av.Uint(), bv.Uint())
	case (isInt(av) || isUint(av) || isFloat(av)) && (isInt(bv) || isUint(bv) || isFloat(bv)):
		return cmp.Compare(toFloat(av), toFloat(bv))
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isInt(v):
		return float64(v.Int())
	case isUint(v):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
