package recommend

import "errors"

var (
	// ErrNoRatings is returned when a component is constructed from an
	// empty rating set. There is nothing to degrade to at that point, so
	// this surfaces to the caller immediately.
	ErrNoRatings = errors.New("recommend: rating set is empty")

	// ErrNoProducts is returned when the catalog is empty.
	ErrNoProducts = errors.New("recommend: product catalog is empty")

	// ErrNotTrained is returned when predictions are requested before
	// Train has completed. This is a programming error in the caller,
	// not a data condition.
	ErrNotTrained = errors.New("recommend: model is not trained")

	// ErrDegenerateRatings is returned when factorization cannot learn
	// anything from the data, e.g. every rating carries the same value.
	ErrDegenerateRatings = errors.New("recommend: ratings are degenerate, factorization aborted")
)
