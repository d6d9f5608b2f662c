package util

// ApplyConversion applies a converter function to each of the models
// provided, returning a new slice of the converted values. A nil
// slice of models produces an empty (non-nil) slice.
func ApplyConversion[T any, K any](models []T, converter func(T) K) []K {
	dtos := make([]K, 0, len(models))
	for _, v := range models {
		dtos = append(dtos, converter(v))
	}

	return dtos
}
