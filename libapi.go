package cotflow

import (
	"context"
	"io/fs"

	"github.com/drblury/cotflow/internal/cot"
	"github.com/drblury/cotflow/internal/cot/tak"
	"github.com/drblury/cotflow/internal/fixtures"
	runtimepkg "github.com/drblury/cotflow/internal/runtime"
	"github.com/drblury/cotflow/internal/runtime/archive"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	idspkg "github.com/drblury/cotflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/cotflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cotflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/cotflow/internal/runtime/transport"
)

// CoT event model.
type (
	Event[D any] = cot.Event[D]
	Base         = cot.Base
	Message      = cot.Message
	NoDetail     = cot.NoDetail
	RawDetail    = cot.RawDetail
	Point        = cot.Point
	Timestamp    = cot.Timestamp
	Category     = cot.Category
	Classified   = cot.Classified

	TokenizationError       = cot.TokenizationError
	MissingFieldError       = cot.MissingFieldError
	MalformedTimestampError = cot.MalformedTimestampError
	InvalidValueError       = cot.InvalidValueError

	Marker       = tak.Marker
	MarkerDetail = tak.MarkerDetail

	Fixture    = fixtures.Fixture
	FixtureSet = fixtures.Set
)

// Relay runtime.
type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory
	Capabilities        = transportpkg.Capabilities

	MessageHandlerRegistration           = runtimepkg.MessageHandlerRegistration
	RelayRegistration                    = runtimepkg.RelayRegistration
	RelayData                            = runtimepkg.RelayData
	CoTHandlerRegistration[D any, O any] = handlerpkg.CoTHandlerRegistration[D, O]
	CoTMessageContext[D any]             = handlerpkg.CoTMessageContext[D]
	CoTMessageOutput[O any]              = handlerpkg.CoTMessageOutput[O]
	TypedHandlerRegistration[D any]      = runtimepkg.TypedHandlerRegistration[D]
	EventHandlerRegistration[T any]      = handlerpkg.EventHandlerRegistration[T]
	EventMessageContext[T any]           = handlerpkg.EventMessageContext[T]
	MessageContextBase                   = handlerpkg.MessageContextBase

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	Producer = runtimepkg.Producer

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	UnprocessableEventError = runtimepkg.UnprocessableEventError

	HandlerInfo           = runtimepkg.HandlerInfo
	HandlerStats          = runtimepkg.HandlerStats
	ConfigValidationError = errspkg.ConfigValidationError

	CloudEvent    = ce.Event
	HandlerResult = ce.HandlerResult

	ArchiveStore  = archive.Store
	ArchiveRecord = archive.Record
	ArchiveQuery  = archive.Query
)

const (
	CategoryOther        = cot.CategoryOther
	CategoryGeoFence     = cot.CategoryGeoFence
	CategoryMarker       = cot.CategoryMarker
	CategoryRangeBearing = cot.CategoryRangeBearing
	CategoryRoute        = cot.CategoryRoute
	CategoryShape        = cot.CategoryShape

	// Version is the CoT schema version written by Encode.
	Version = cot.Version
)

var (
	Parse             = cot.Parse
	ParseType         = cot.ParseType
	Classify          = cot.Classify
	Detect            = cot.Detect
	Categories        = cot.Categories
	ExtractDetail     = cot.ExtractDetailString
	FormatTime        = cot.FormatTime
	ParseTime         = cot.ParseTime
	NorthPole         = cot.NorthPole
	NewMarker         = tak.NewMarker
	DecodeMarker      = tak.DecodeMarker
	Examples          = fixtures.Examples
	MalformedExamples = fixtures.Malformed
	ErrParse          = cot.ErrParse
	ErrFixtureMissing = fixtures.ErrNotFound
)

var (
	NewService      = runtimepkg.NewService
	ValidateConfig  = configpkg.ValidateConfig
	DefaultConfig   = configpkg.Default
	ConfigFromEnv   = configpkg.FromEnv
	GetCapabilities = transportpkg.GetCapabilities
	OpenArchive     = archive.Open

	RegisterMessageHandler = runtimepkg.RegisterMessageHandler
	RegisterRelayHandler   = runtimepkg.RegisterRelayHandler
	NewRelayEvent          = runtimepkg.NewRelayEvent
	NewMessageFromCoT      = runtimepkg.NewMessageFromCoT
	PublishCoT             = runtimepkg.PublishCoT

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	ArchiveMiddleware       = runtimepkg.ArchiveMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	OutcomeMiddleware       = runtimepkg.OutcomeMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewCloudEvent           = ce.New
	ErrRetry                = ce.ErrRetry
	ErrDeadLetter           = ce.ErrDeadLetter
	ErrSkip                 = ce.ErrSkip
	ErrUnprocessable        = ce.ErrUnprocessable
	ErrDeadLetterWithReason = ce.ErrDeadLetterWithReason
	ClassifyError           = ce.ClassifyError
	IsRetryable             = ce.IsRetryable
	ShouldDeadLetter        = ce.ShouldDeadLetter

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrPublishQueueRequired = errspkg.ErrPublishQueueRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrDocumentRequired     = errspkg.ErrDocumentRequired
	ErrRecordNotFound       = errspkg.ErrRecordNotFound

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Metadata keys set on relay messages.
const (
	MetadataKeyCorrelationID = handlerpkg.MetadataKeyCorrelationID
	MetadataKeyCoTUID        = handlerpkg.MetadataKeyCoTUID
	MetadataKeyCoTType       = handlerpkg.MetadataKeyCoTType
	MetadataKeyCoTHow        = handlerpkg.MetadataKeyCoTHow
	MetadataKeyCoTCategory   = handlerpkg.MetadataKeyCoTCategory
)

// Decode reads a CoT document whose detail region is decoded as D.
func Decode[D any](text string) (Event[D], error) {
	return cot.Decode[D](text)
}

// Encode renders evt as a CoT document.
func Encode[D any](evt Event[D]) (string, error) {
	return cot.Encode(evt)
}

// NewFixtureSet serves the .cot files directly inside dir of fsys.
func NewFixtureSet(fsys fs.FS, dir string) FixtureSet {
	return fixtures.NewSet(fsys, dir)
}

func RegisterCoTHandler[D any, O any](svc *Service, cfg CoTHandlerRegistration[D, O]) error {
	return runtimepkg.RegisterCoTHandler(svc, cfg)
}

func RegisterTypedHandler[D any](svc *Service, cfg TypedHandlerRegistration[D]) error {
	return runtimepkg.RegisterTypedHandler(svc, cfg)
}

func RegisterEventHandler[T any](svc *Service, cfg EventHandlerRegistration[T]) error {
	return runtimepkg.RegisterEventHandler(svc, cfg)
}

func PublishCoTEvent[D any](ctx context.Context, svc *Service, topic string, evt Event[D], md Metadata) error {
	return runtimepkg.PublishCoTEvent(ctx, svc, topic, evt, md)
}
