package extensions

// Number is any value the numeric helpers can operate on
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}
