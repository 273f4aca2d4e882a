package publishing

import "fmt"

type DataStage string

const (
	DataNotStarted DataStage = "NotStarted"
	DataQueued     DataStage = "Queued"
	DataStarted    DataStage = "Started"
	DataComplete   DataStage = "Complete"
	DataFailed     DataStage = "Failed"
)

type ContentStage string

const (
	ContentNotStarted ContentStage = "NotStarted"
	ContentStarted    ContentStage = "Started"
	ContentComplete   ContentStage = "Complete"
	ContentFailed     ContentStage = "Failed"
	ContentScheduled  ContentStage = "Scheduled"
)

type FilesStage string

const (
	FilesNotStarted FilesStage = "NotStarted"
	FilesStarted    FilesStage = "Started"
	FilesComplete   FilesStage = "Complete"
	FilesFailed     FilesStage = "Failed"
)

type PublishingStage string

const (
	PublishingNotStarted PublishingStage = "NotStarted"
	PublishingStarted    PublishingStage = "Started"
	PublishingScheduled  PublishingStage = "Scheduled"
	PublishingComplete   PublishingStage = "Complete"
	PublishingFailed     PublishingStage = "Failed"
	PublishingCancelled  PublishingStage = "Cancelled"
)

type OverallStage string

const (
	OverallValidating OverallStage = "Validating"
	OverallScheduled  OverallStage = "Scheduled"
	OverallStarted    OverallStage = "Started"
	OverallComplete   OverallStage = "Complete"
	OverallFailed     OverallStage = "Failed"
	OverallInvalid    OverallStage = "Invalid"
	OverallSuperseded OverallStage = "Superseded"
)

// StageName identifies one of the four independently tracked stage fields.
type StageName string

const (
	StageData       StageName = "Data"
	StageContent    StageName = "Content"
	StageFiles      StageName = "Files"
	StagePublishing StageName = "Publishing"
)

var stageValues = map[StageName][]string{
	StageData:       {string(DataNotStarted), string(DataQueued), string(DataStarted), string(DataComplete), string(DataFailed)},
	StageContent:    {string(ContentNotStarted), string(ContentStarted), string(ContentComplete), string(ContentFailed), string(ContentScheduled)},
	StageFiles:      {string(FilesNotStarted), string(FilesStarted), string(FilesComplete), string(FilesFailed)},
	StagePublishing: {string(PublishingNotStarted), string(PublishingStarted), string(PublishingScheduled), string(PublishingComplete), string(PublishingFailed), string(PublishingCancelled)},
}

func ParseStageName(s string) (StageName, error) {
	name := StageName(s)
	if _, ok := stageValues[name]; !ok {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return name, nil
}

// ValidValue reports whether value belongs to the enumeration of the stage.
func (n StageName) ValidValue(value string) bool {
	for _, v := range stageValues[n] {
		if v == value {
			return true
		}
	}
	return false
}

func (s OverallStage) IsAbsorbing() bool {
	return s == OverallInvalid || s == OverallSuperseded
}

func (s OverallStage) IsTerminal() bool {
	switch s {
	case OverallComplete, OverallFailed, OverallInvalid, OverallSuperseded:
		return true
	default:
		return false
	}
}

// CanRetry is true only for attempts that ran to an end, successfully or not.
func (s OverallStage) CanRetry() bool {
	return s == OverallComplete || s == OverallFailed
}
