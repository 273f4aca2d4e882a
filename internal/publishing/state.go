package publishing

import "fmt"

// State is the set of stage values of one publishing attempt.
type State struct {
	Data       DataStage
	Content    ContentStage
	Files      FilesStage
	Publishing PublishingStage
	Overall    OverallStage
}

// NewScheduledState is the initial state of an attempt waiting for its
// publish time.
func NewScheduledState() State {
	return State{
		Data:       DataNotStarted,
		Content:    ContentScheduled,
		Files:      FilesNotStarted,
		Publishing: PublishingScheduled,
		Overall:    OverallScheduled,
	}
}

// NewImmediateState is the initial state of an attempt that starts right away.
func NewImmediateState() State {
	return State{
		Data:       DataQueued,
		Content:    ContentNotStarted,
		Files:      FilesNotStarted,
		Publishing: PublishingNotStarted,
		Overall:    OverallStarted,
	}
}

func NewInvalidState() State {
	return State{
		Data:       DataNotStarted,
		Content:    ContentNotStarted,
		Files:      FilesNotStarted,
		Publishing: PublishingNotStarted,
		Overall:    OverallInvalid,
	}
}

// Set assigns a single stage field and recomputes the overall stage.
func (s State) Set(name StageName, value string) (State, error) {
	if !name.ValidValue(value) {
		return s, fmt.Errorf("invalid value %q for stage %s", value, name)
	}

	switch name {
	case StageData:
		s.Data = DataStage(value)
	case StageContent:
		s.Content = ContentStage(value)
	case StageFiles:
		s.Files = FilesStage(value)
	case StagePublishing:
		s.Publishing = PublishingStage(value)
	}

	s.Overall = DeriveOverall(s)
	return s, nil
}

func (s State) Get(name StageName) string {
	switch name {
	case StageData:
		return string(s.Data)
	case StageContent:
		return string(s.Content)
	case StageFiles:
		return string(s.Files)
	case StagePublishing:
		return string(s.Publishing)
	}
	return ""
}

// HasFailed reports whether any stage field is Failed.
func (s State) HasFailed() bool {
	return s.Data == DataFailed ||
		s.Content == ContentFailed ||
		s.Files == FilesFailed ||
		s.Publishing == PublishingFailed
}

// Complete is true once every stage has completed.
func (s State) Complete() bool {
	return s.Files == FilesComplete &&
		s.Data == DataComplete &&
		s.Content == ContentComplete &&
		s.Publishing == PublishingComplete
}

// ReadyToPublish is true once files, data and content are all complete and
// the publishing stage has not begun yet.
func (s State) ReadyToPublish() bool {
	return s.Files == FilesComplete &&
		s.Data == DataComplete &&
		s.Content == ContentComplete &&
		(s.Publishing == PublishingNotStarted || s.Publishing == PublishingScheduled)
}

func (s State) idle() bool {
	return s.Data == DataNotStarted &&
		s.Files == FilesNotStarted &&
		(s.Content == ContentNotStarted || s.Content == ContentScheduled) &&
		(s.Publishing == PublishingNotStarted || s.Publishing == PublishingScheduled)
}

// DeriveOverall is the single place the overall stage is computed from the
// four stage fields. Invalid and Superseded are never left once reached.
func DeriveOverall(s State) OverallStage {
	if s.Overall.IsAbsorbing() {
		return s.Overall
	}

	if s.Publishing == PublishingCancelled {
		return OverallInvalid
	}

	if s.HasFailed() {
		return OverallFailed
	}

	if s.Complete() {
		return OverallComplete
	}

	if s.idle() {
		if s.Content == ContentScheduled || s.Publishing == PublishingScheduled {
			return OverallScheduled
		}
		if s.Overall == OverallValidating {
			return OverallValidating
		}
	}

	return OverallStarted
}
