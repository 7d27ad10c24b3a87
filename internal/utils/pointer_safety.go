package utils

// Value dereferences v, giving the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// MapPtr applies f to the pointee and keeps nil as nil, for converting optional patch fields.
func MapPtr[T, U any](v *T, f func(T) U) *U {
	if v == nil {
		return nil
	}
	u := f(*v)
	return &u
}
