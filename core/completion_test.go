package core

import (
	"context"
	"errors"
	"testing"
)

func TestHandleActivityResult_PushSuccessSchedulesRefresh(t *testing.T) {
	sink := &captureActivitySink{}
	enqueuer := &captureEnqueuer{}
	var notified []ActivityEntry
	svc := newTestService(t, &stubWallet{},
		WithActivitySink(sink),
		WithJobEnqueuer(enqueuer),
		WithCompletionListener(CompletionListenerFunc(func(_ context.Context, _ ActivityResult, entry ActivityEntry) {
			notified = append(notified, entry)
		})),
	)

	entry, err := svc.HandleActivityResult(context.Background(), ActivityResult{
		RequestCode:    RequestCodePushTokenize,
		ResultCode:     ResultCodeOK,
		TokenReference: "T-9",
		Metadata:       map[string]any{"phone_number": "+15555550100"},
	})
	if err != nil {
		t.Fatalf("handle activity result: %v", err)
	}
	if entry.Operation != "push_provision.completed" || entry.Status != ActivityStatusOK {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry.Metadata["phone_number"] != RedactedValue {
		t.Fatalf("expected redacted metadata, got %#v", entry.Metadata["phone_number"])
	}
	if len(sink.snapshot()) != 1 {
		t.Fatalf("expected activity entry to be recorded")
	}
	if len(notified) != 1 || notified[0].TokenReference != "T-9" {
		t.Fatalf("expected listener notification, got %#v", notified)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected refresh job, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDTokenStatusRefresh || msg.Parameters[JobParamTokenReference] != "T-9" {
		t.Fatalf("unexpected job message %#v", msg)
	}
}

func TestHandleActivityResult_CancelledDoesNotScheduleRefresh(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	svc := newTestService(t, &stubWallet{}, WithJobEnqueuer(enqueuer))

	entry, err := svc.HandleActivityResult(context.Background(), ActivityResult{
		RequestCode:    RequestCodePushTokenize,
		ResultCode:     ResultCodeCanceled,
		TokenReference: "T-9",
	})
	if err != nil {
		t.Fatalf("handle activity result: %v", err)
	}
	if entry.Status != ActivityStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", entry.Status)
	}
	if len(enqueuer.messages) != 0 {
		t.Fatalf("expected no refresh job for cancelled flow")
	}
}

func TestHandleActivityResult_FailedCreateWallet(t *testing.T) {
	svc := newTestService(t, &stubWallet{})

	entry, err := svc.HandleActivityResult(context.Background(), ActivityResult{
		RequestCode: RequestCodeCreateWallet,
		ResultCode:  7,
	})
	if err != nil {
		t.Fatalf("handle activity result: %v", err)
	}
	if entry.Status != ActivityStatusFailed || entry.ErrorKind != ErrorActiveWallet {
		t.Fatalf("unexpected failed entry %#v", entry)
	}
}

func TestHandleActivityResult_FailedFlowsKeepTheirOwnKind(t *testing.T) {
	svc := newTestService(t, &stubWallet{})

	cases := map[int]string{
		RequestCodePushTokenize:       ErrorPushProvision,
		RequestCodeTokenize:           ErrorTokenize,
		RequestCodeSetDefaultPayments: ErrorDefaultPayments,
	}
	for requestCode, kind := range cases {
		entry, err := svc.HandleActivityResult(context.Background(), ActivityResult{
			RequestCode: requestCode,
			ResultCode:  7,
		})
		if err != nil {
			t.Fatalf("handle activity result %d: %v", requestCode, err)
		}
		if entry.ErrorKind != kind {
			t.Fatalf("request code %d: expected %q, got %q", requestCode, kind, entry.ErrorKind)
		}
	}
}

func TestHandleActivityResult_UnknownRequestCode(t *testing.T) {
	svc := newTestService(t, &stubWallet{})

	_, err := svc.HandleActivityResult(context.Background(), ActivityResult{RequestCode: 99})
	if ErrorKind(err) != ErrorBadInput {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestHandleActivityResult_ListenerPanicIsContained(t *testing.T) {
	calls := 0
	svc := newTestService(t, &stubWallet{},
		WithCompletionListener(CompletionListenerFunc(func(context.Context, ActivityResult, ActivityEntry) {
			panic("listener failure")
		})),
		WithCompletionListener(CompletionListenerFunc(func(context.Context, ActivityResult, ActivityEntry) {
			calls++
		})),
	)
	if _, err := svc.HandleActivityResult(context.Background(), ActivityResult{
		RequestCode: RequestCodeCreateWallet,
		ResultCode:  ResultCodeOK,
	}); err != nil {
		t.Fatalf("handle activity result: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected later listener to run, got %d", calls)
	}
}

func TestProcessNextJob_AcksSuccessfulRefresh(t *testing.T) {
	wallet := &stubWallet{tokenStatus: TokenStatus{TokenState: int(TokenStateActive)}}
	svc := newTestService(t, wallet)
	delivery := &stubDelivery{msg: &JobExecutionMessage{
		JobID:      JobIDTokenStatusRefresh,
		Parameters: map[string]any{JobParamTokenReference: "T-1"},
	}}

	if err := svc.ProcessNextJob(context.Background(), stubDequeuer{delivery: delivery}); err != nil {
		t.Fatalf("process next job: %v", err)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack, got acked=%v nacked=%v", delivery.acked, delivery.nacked)
	}
}

func TestProcessNextJob_AcksMissingToken(t *testing.T) {
	wallet := &stubWallet{tokenErr: NewAPIError(StatusTokenNotFound, "gone")}
	svc := newTestService(t, wallet)
	delivery := &stubDelivery{msg: &JobExecutionMessage{
		JobID:      JobIDTokenStatusRefresh,
		Parameters: map[string]any{JobParamTokenReference: "T-1"},
	}}

	if err := svc.ProcessNextJob(context.Background(), stubDequeuer{delivery: delivery}); err != nil {
		t.Fatalf("process next job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected missing token job to be acked")
	}
}

func TestProcessNextJob_RequeuesTransientFailure(t *testing.T) {
	wallet := &stubWallet{tokenErr: NewAPIError(StatusUnavailable, "down")}
	svc := newTestService(t, wallet)
	delivery := &stubDelivery{msg: &JobExecutionMessage{
		JobID:      JobIDTokenStatusRefresh,
		Parameters: map[string]any{JobParamTokenReference: "T-1"},
	}}

	err := svc.ProcessNextJob(context.Background(), stubDequeuer{delivery: delivery})
	if ErrorKind(err) != ErrorTokenStatus {
		t.Fatalf("expected token status error, got %v", err)
	}
	if !delivery.nacked || !delivery.nack.Requeue || delivery.nack.Delay != tokenStatusRefreshRetryDelay {
		t.Fatalf("expected delayed requeue, got %#v", delivery.nack)
	}
}

func TestProcessNextJob_DeadLettersMalformedJob(t *testing.T) {
	svc := newTestService(t, &stubWallet{})
	delivery := &stubDelivery{msg: &JobExecutionMessage{JobID: "something.else"}}

	err := svc.ProcessNextJob(context.Background(), stubDequeuer{delivery: delivery})
	if ErrorKind(err) != ErrorBadInput {
		t.Fatalf("expected bad input, got %v", err)
	}
	if !delivery.nack.DeadLetter {
		t.Fatalf("expected dead letter, got %#v", delivery.nack)
	}
}

func TestProcessNextJob_DequeueErrorAndEmptyQueue(t *testing.T) {
	svc := newTestService(t, &stubWallet{})
	sentinel := errors.New("queue closed")
	if err := svc.ProcessNextJob(context.Background(), stubDequeuer{err: sentinel}); !errors.Is(err, sentinel) {
		t.Fatalf("expected dequeue error, got %v", err)
	}
	if err := svc.ProcessNextJob(context.Background(), stubDequeuer{}); err != nil {
		t.Fatalf("expected empty queue to be a no-op, got %v", err)
	}
}
