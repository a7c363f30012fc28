package core

import "context"

// GetStableHardwareID resolves the device's stable hardware identifier. When a
// HardwareIDCache is configured, lookups go through it and only a miss reaches
// the wallet client.
func (s *Service) GetStableHardwareID(ctx context.Context) *Promise[string] {
	p := NewPromise[string]()
	if s == nil || s.client == nil {
		p.Reject(newInternalError(ErrWalletClientRequired.Error()))
		return p
	}
	op := s.begin(ctx, "get_stable_hardware_id", nil)

	if s.hardwareIDCache == nil {
		op.fields["cached"] = false
		dispatch(s, op, p, func() {
			s.client.GetStableHardwareID(op.ctx, guard(s, op, p, func(id string, err error) {
				if err != nil {
					reject(s, op, p, hardwareIDFailure(op.name, err))
					return
				}
				resolve(s, op, p, id)
			}))
		})
		return p
	}

	op.fields["cached"] = true
	go dispatch(s, op, p, func() {
		id, err := s.hardwareIDCache.GetOrFetch(op.ctx, s.fetchStableHardwareID)
		if err != nil {
			reject(s, op, p, hardwareIDFailure(op.name, err))
			return
		}
		resolve(s, op, p, id)
	})
	return p
}

// fetchStableHardwareID blocks on the wallet client completion so it can back
// a cache fetch.
func (s *Service) fetchStableHardwareID(ctx context.Context) (string, error) {
	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	s.client.GetStableHardwareID(ctx, func(id string, err error) {
		select {
		case done <- outcome{id: id, err: err}:
		default:
		}
	})
	select {
	case out := <-done:
		return out.id, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func hardwareIDFailure(operation string, err error) error {
	return operationFailure(ErrorStableHardware, operation, "Could not get stable hardware id", err)
}
