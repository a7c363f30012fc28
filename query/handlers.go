package query

import (
	"context"

	"github.com/goliatone/go-wallet-provisioning/core"
)

type WalletReader interface {
	GetActiveWalletID(ctx context.Context) *core.Promise[string]
	GetStableHardwareID(ctx context.Context) *core.Promise[string]
	GetTokenStatus(ctx context.Context, tokenReference string) *core.Promise[string]
	CanAddToken(ctx context.Context, issuerTokenID string) *core.Promise[bool]
}

type ActivityReader interface {
	List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

type ActiveWalletIDQuery struct {
	reader WalletReader
}

func NewActiveWalletIDQuery(reader WalletReader) *ActiveWalletIDQuery {
	return &ActiveWalletIDQuery{reader: reader}
}

func (q *ActiveWalletIDQuery) Query(ctx context.Context, _ ActiveWalletIDMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", core.MissingDependency("query", "wallet reader")
	}
	return q.reader.GetActiveWalletID(ctx).Await(ctx)
}

type StableHardwareIDQuery struct {
	reader WalletReader
}

func NewStableHardwareIDQuery(reader WalletReader) *StableHardwareIDQuery {
	return &StableHardwareIDQuery{reader: reader}
}

func (q *StableHardwareIDQuery) Query(ctx context.Context, _ StableHardwareIDMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", core.MissingDependency("query", "wallet reader")
	}
	return q.reader.GetStableHardwareID(ctx).Await(ctx)
}

type TokenStatusQuery struct {
	reader WalletReader
}

func NewTokenStatusQuery(reader WalletReader) *TokenStatusQuery {
	return &TokenStatusQuery{reader: reader}
}

func (q *TokenStatusQuery) Query(ctx context.Context, msg TokenStatusMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", core.MissingDependency("query", "wallet reader")
	}
	return q.reader.GetTokenStatus(ctx, msg.TokenReference).Await(ctx)
}

type CanAddTokenQuery struct {
	reader WalletReader
}

func NewCanAddTokenQuery(reader WalletReader) *CanAddTokenQuery {
	return &CanAddTokenQuery{reader: reader}
}

func (q *CanAddTokenQuery) Query(ctx context.Context, msg CanAddTokenMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, core.MissingDependency("query", "wallet reader")
	}
	return q.reader.CanAddToken(ctx, msg.IssuerTokenID).Await(ctx)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, core.MissingDependency("query", "activity reader")
	}
	return q.reader.List(ctx, msg.Filter)
}
