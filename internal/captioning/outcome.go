package captioning

// Status is the tag of an Outcome
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// ErrorKind names why a caption request failed
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation_error"
	KindConfig           ErrorKind = "config_error"
	KindImageRead        ErrorKind = "image_read_error"
	KindTransport        ErrorKind = "transport_error"
	KindRejected         ErrorKind = "rejected_content"
	KindMalformed        ErrorKind = "malformed_response"
	KindExhaustedRetries ErrorKind = "exhausted_retries"
	KindStorage          ErrorKind = "storage_error"
	KindInternal         ErrorKind = "internal_error"
)

// Outcome is the result of one caption request
type Outcome struct {
	ImageName string    `json:"image_name"`
	Status    Status    `json:"status"`
	Caption   string    `json:"caption,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
}

func Success(imageName, caption string) Outcome {
	return Outcome{ImageName: imageName, Status: StatusSuccess, Caption: caption}
}

func Failure(imageName string, kind ErrorKind, message string) Outcome {
	return Outcome{ImageName: imageName, Status: StatusFailure, ErrorKind: kind, Message: message}
}

func Cancelled(imageName string) Outcome {
	return Outcome{ImageName: imageName, Status: StatusCancelled}
}

// OK reports whether the outcome carries a caption
func (o Outcome) OK() bool { return o.Status == StatusSuccess }
