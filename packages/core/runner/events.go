package runner

import (
	"time"

	"github.com/abdul-hamid-achik/schemaprobe/packages/schema"
)

// Event is one element of the execution stream consumed by reporting layers.
// The stream for a run is: Initialized, then BeforeExecution/AfterExecution
// pairs per endpoint, then Finished. Interrupted preempts remaining endpoint
// events on cancellation; InternalError replaces the whole stream when setup
// fails.
type Event interface {
	isEvent()
}

type Initialized struct {
	ScheduledCount int
	StartTime      time.Time
}

type BeforeExecution struct {
	Endpoint *schema.Endpoint
}

type AfterExecution struct {
	Result         *TestResult
	Status         Status
	CapturedOutput []string
}

type Interrupted struct{}

type InternalError struct {
	Err error
}

type Finished struct {
	Results     *TestResultSet
	RunningTime time.Duration
}

func (Initialized) isEvent()     {}
func (BeforeExecution) isEvent() {}
func (AfterExecution) isEvent()  {}
func (Interrupted) isEvent()     {}
func (InternalError) isEvent()   {}
func (Finished) isEvent()        {}
