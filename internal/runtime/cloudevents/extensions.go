package cloudevents

// Extension attributes set on relay events.
const (
	ExtCorrelationID = "correlationid"
	ExtCoTUID        = "cotuid"
	ExtCoTCategory   = "cotcategory"
	ExtCoTHow        = "cothow"
	ExtCoTStale      = "cotstale"
)

// CorrelationID returns the correlation extension of evt.
func CorrelationID(evt Event) string {
	return evt.Extension(ExtCorrelationID)
}

// CoTUID returns the uid of the CoT event evt was built from.
func CoTUID(evt Event) string {
	return evt.Extension(ExtCoTUID)
}

// CoTCategory returns the classifier category name carried by evt.
func CoTCategory(evt Event) string {
	return evt.Extension(ExtCoTCategory)
}
