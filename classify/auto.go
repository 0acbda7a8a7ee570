package classify

import "errors"

// AutoClassifier delegates to a specific classifier based on the error type.
//
// Behavior:
// - If the error chain contains an HTTPError: uses HTTPClassifier.
// - Otherwise: uses DefaultSignatures.
type AutoClassifier struct{}

func (AutoClassifier) Classify(err error) Verdict {
	var he HTTPError
	if errors.As(err, &he) {
		return HTTPClassifier{}.Classify(err)
	}
	return DefaultSignatures().Classify(err)
}
