package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	JobIDTokenStatusRefresh = "provisioning.token_status.refresh"

	JobParamTokenReference = "token_reference"

	tokenStatusRefreshRetryDelay = 30 * time.Second
)

var ErrUnknownRequestCode = errors.New("core: unknown activity request code")

// HandleActivityResult consumes the outcome of a UI flow started by
// PushProvision or CreateWallet. The entry is recorded and handed to every
// registered CompletionListener. A successful push provisioning with a token
// reference also schedules a token status refresh.
func (s *Service) HandleActivityResult(ctx context.Context, result ActivityResult) (ActivityEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	flow, ok := activityFlowName(result.RequestCode)
	if !ok {
		err := newBadInputError(fmt.Sprintf("%s: %d", ErrUnknownRequestCode.Error(), result.RequestCode))
		err.WithMetadata(map[string]any{"request_code": result.RequestCode})
		return ActivityEntry{}, s.mapError(err)
	}

	startedAt := time.Now().UTC()
	status := activityStatusForResult(result.ResultCode)
	metadata := RedactSensitiveMap(result.Metadata)
	metadata["request_code"] = result.RequestCode
	metadata["result_code"] = result.ResultCode

	entry := ActivityEntry{
		Operation:      flow + ".completed",
		Status:         status,
		TokenReference: strings.TrimSpace(result.TokenReference),
		RequestCode:    result.RequestCode,
		Metadata:       metadata,
		CreatedAt:      startedAt,
	}
	if status == ActivityStatusFailed {
		entry.StatusTag = UnknownStatusTag
		entry.ErrorKind = activityErrorKind(result.RequestCode)
	}

	var outcome error
	if status == ActivityStatusFailed {
		outcome = fmt.Errorf("core: %s flow finished with result code %d", flow, result.ResultCode)
	}
	fields := cloneFields(metadata)
	fields["activity_status"] = string(status)
	s.observeOperation(ctx, startedAt, entry.Operation, outcome, fields)
	s.recordActivity(ctx, entry)
	s.notifyListeners(ctx, result, entry)

	if result.RequestCode == RequestCodePushTokenize && status == ActivityStatusOK && entry.TokenReference != "" {
		s.scheduleTokenStatusRefresh(ctx, entry.TokenReference)
	}
	return entry, nil
}

func activityFlowName(requestCode int) (string, bool) {
	switch requestCode {
	case RequestCodePushTokenize:
		return "push_provision", true
	case RequestCodeCreateWallet:
		return "create_wallet", true
	case RequestCodeTokenize:
		return "tokenize", true
	case RequestCodeSetDefaultPayments:
		return "set_default_payments", true
	default:
		return "", false
	}
}

func activityStatusForResult(resultCode int) ActivityStatus {
	switch resultCode {
	case ResultCodeOK:
		return ActivityStatusOK
	case ResultCodeCanceled:
		return ActivityStatusCancelled
	default:
		return ActivityStatusFailed
	}
}

func activityErrorKind(requestCode int) string {
	switch requestCode {
	case RequestCodeCreateWallet:
		return ErrorActiveWallet
	case RequestCodeTokenize:
		return ErrorTokenize
	case RequestCodeSetDefaultPayments:
		return ErrorDefaultPayments
	case RequestCodePushTokenize:
		return ErrorPushProvision
	default:
		return ErrorInternal
	}
}

func (s *Service) notifyListeners(ctx context.Context, result ActivityResult, entry ActivityEntry) {
	for _, listener := range s.listeners {
		if listener == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logError(ctx, "completion listener panicked", map[string]any{
						"operation": entry.Operation,
						"panic":     r,
					})
				}
			}()
			listener.OnActivityResult(ctx, result, entry)
		}()
	}
}

func (s *Service) scheduleTokenStatusRefresh(ctx context.Context, tokenReference string) {
	if s.jobEnqueuer == nil {
		return
	}
	msg := &JobExecutionMessage{
		JobID:          JobIDTokenStatusRefresh,
		Parameters:     map[string]any{JobParamTokenReference: tokenReference},
		IdempotencyKey: JobIDTokenStatusRefresh + ":" + tokenReference,
	}
	if err := s.jobEnqueuer.Enqueue(ctx, msg); err != nil {
		s.logWarn(ctx, "token status refresh enqueue failed", map[string]any{
			"token_reference": tokenReference,
			"error":           err.Error(),
		})
		s.recordCounter(ctx, MetricJobsEnqueued, 1, map[string]string{"job_id": JobIDTokenStatusRefresh, "status": "failure"})
		return
	}
	s.recordCounter(ctx, MetricJobsEnqueued, 1, map[string]string{"job_id": JobIDTokenStatusRefresh, "status": "success"})
}

// RunTokenStatusRefresh executes a token status refresh job and returns the
// translated state tag.
func (s *Service) RunTokenStatusRefresh(ctx context.Context, msg *JobExecutionMessage) (string, error) {
	if s == nil {
		return "", newInternalError("core: service is not configured")
	}
	if msg == nil {
		return "", s.mapError(newBadInputError("core: job message is required"))
	}
	if strings.TrimSpace(msg.JobID) != JobIDTokenStatusRefresh {
		return "", s.mapError(newBadInputError(fmt.Sprintf("core: unsupported job id %q", msg.JobID)))
	}
	tokenReference, _ := msg.Parameters[JobParamTokenReference].(string)
	tokenReference = strings.TrimSpace(tokenReference)
	if tokenReference == "" {
		return "", s.mapError(newBadInputError("core: token_reference job parameter is required"))
	}
	return s.GetTokenStatus(ctx, tokenReference).Await(ctx)
}

// ProcessNextJob dequeues and runs one job. Malformed jobs are dead-lettered,
// jobs for tokens the wallet no longer knows are acked, other failures are
// requeued with a delay.
func (s *Service) ProcessNextJob(ctx context.Context, dequeuer JobDequeuer) error {
	if dequeuer == nil {
		return s.mapError(newInternalError("core: job dequeuer is required"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	tag, runErr := s.RunTokenStatusRefresh(ctx, delivery.Message())
	if runErr == nil {
		s.logInfo(ctx, "token status refreshed", map[string]any{"status_tag": tag})
		return delivery.Ack(ctx)
	}
	if IsTokenNotFound(runErr) {
		return delivery.Ack(ctx)
	}

	opts := JobNackOptions{Requeue: true, Delay: tokenStatusRefreshRetryDelay, Reason: runErr.Error()}
	var rich *goerrors.Error
	if goerrors.As(runErr, &rich) && rich != nil && rich.Category == goerrors.CategoryBadInput {
		opts = JobNackOptions{DeadLetter: true, Reason: runErr.Error()}
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return errors.Join(runErr, nackErr)
	}
	return runErr
}
