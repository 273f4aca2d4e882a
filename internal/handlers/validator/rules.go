package validator

// NewReleaseValidator checks release version submissions.
func NewReleaseValidator() *Validator {
	return NewValidator(
		Rule{Tag: "slug", Fn: slugValidator},
		Rule{Tag: "blob_path", Fn: blobPathValidator},
		Rule{Tag: "release_version_id", Fn: uuidValidator},
	)
}

// NewPublishingValidator checks retry and timer trigger requests.
func NewPublishingValidator() *Validator {
	return NewValidator(
		Rule{Tag: "stage_name", Fn: stageNameValidator},
		Rule{Tag: "release_version_id", Fn: uuidValidator},
	)
}
