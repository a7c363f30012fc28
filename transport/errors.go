package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-wallet-provisioning/core"
)

const (
	ErrorTransportFailure = "WALLET_TRANSPORT_FAILURE"
	ErrorDecodeFailure    = "WALLET_DECODE_FAILURE"
)

// Stage is the step of an agent call that failed. It is recorded in the
// error metadata under "stage".
type Stage string

const (
	StageSetup  Stage = "setup"
	StageURL    Stage = "url"
	StageEncode Stage = "encode"
	StageSend   Stage = "send"
	StageRead   Stage = "read"
	StageDecode Stage = "decode"
)

type stageClass struct {
	category goerrors.Category
	status   int
	textCode string
}

var stageClasses = map[Stage]stageClass{
	StageSetup:  {goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal},
	StageURL:    {goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput},
	StageEncode: {goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput},
	StageSend:   {goerrors.CategoryExternal, http.StatusBadGateway, ErrorTransportFailure},
	StageRead:   {goerrors.CategoryExternal, http.StatusBadGateway, ErrorTransportFailure},
	StageDecode: {goerrors.CategoryExternal, http.StatusBadGateway, ErrorDecodeFailure},
}

// fail builds the error for an agent call that broke at stage. cause may be nil.
func fail(stage Stage, cause error, message string, fields map[string]any) *goerrors.Error {
	class, ok := stageClasses[stage]
	if !ok {
		class = stageClasses[StageSetup]
	}
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(message, class.category)
	} else {
		err = goerrors.Wrap(cause, class.category, message)
	}
	return err.
		WithCode(class.status).
		WithTextCode(class.textCode).
		WithMetadata(map[string]any{"stage": string(stage)}, fields)
}

// StageOf returns the stage a transport error was raised at.
func StageOf(err error) (Stage, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return "", false
	}
	stage, ok := rich.Metadata["stage"].(string)
	return Stage(stage), ok && stage != ""
}
