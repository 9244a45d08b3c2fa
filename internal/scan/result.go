package scan

// InvalidImageStatus is the image status the service uses when it could not
// recognize anything in the submitted image.
const InvalidImageStatus = "invalid"

// Verdict tags a transport-successful response as usable or rejected
type Verdict int

const (
	Valid Verdict = iota
	Rejected
)

func (v Verdict) String() string {
	if v == Rejected {
		return "rejected"
	}
	return "valid"
}

// Result is a response after its image status has been interpreted
type Result struct {
	Verdict  Verdict
	Response Response
	Reason   string
}

// Evaluate turns the image status sentinel into an explicit verdict. It is
// called once, right after the upload returns.
func Evaluate(resp Response) Result {
	if resp.ImageStatus == InvalidImageStatus {
		return Result{
			Verdict:  Rejected,
			Response: resp,
			Reason:   "image not recognized",
		}
	}
	return Result{Verdict: Valid, Response: resp}
}

// IsValid reports whether the result may be shown and recorded
func (r Result) IsValid() bool {
	return r.Verdict == Valid
}
