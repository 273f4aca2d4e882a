package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/pkg/dataset"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrReleaseVersionNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "release version")
}

func NewErrReleaseStatusNotFound(releaseVersionID uuid.UUID) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("release version %s has no publishing attempt", releaseVersionID)}
}

func NewErrDataSetNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "data set")
}

type ErrRetryRejected struct {
	error
}

func NewErrRetryRejected(releaseVersionID uuid.UUID, overall publishing.OverallStage) *ErrRetryRejected {
	return &ErrRetryRejected{fmt.Errorf("release version %s cannot be retried while its publishing is %s", releaseVersionID, overall)}
}

type ErrCancelRejected struct {
	error
}

func NewErrCancelRejected(releaseVersionID uuid.UUID, overall publishing.OverallStage) *ErrCancelRejected {
	return &ErrCancelRejected{fmt.Errorf("release version %s publishing is %s, only scheduled publishing can be cancelled", releaseVersionID, overall)}
}

type ErrInvalidStage struct {
	error
}

func NewErrInvalidStage(stage string) *ErrInvalidStage {
	return &ErrInvalidStage{fmt.Errorf("unknown stage %q", stage)}
}

type ErrReleaseNotPublishable struct {
	error
	Reasons []string
}

func NewErrReleaseNotPublishable(releaseVersionID uuid.UUID, reasons []string) *ErrReleaseNotPublishable {
	return &ErrReleaseNotPublishable{
		error:   fmt.Errorf("release version %s cannot be published: %s", releaseVersionID, strings.Join(reasons, "; ")),
		Reasons: reasons,
	}
}

type ErrDataSetNotQueryable struct {
	error
}

func NewErrDataSetNotQueryable(id uuid.UUID) *ErrDataSetNotQueryable {
	return &ErrDataSetNotQueryable{fmt.Errorf("data set %s is not published", id)}
}

type ErrInvalidQuery struct {
	*dataset.QueryError
}

func NewErrInvalidQuery(err *dataset.QueryError) *ErrInvalidQuery {
	return &ErrInvalidQuery{QueryError: err}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}
