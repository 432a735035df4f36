package proposal

import "context"

// Repository はProposal永続化の抽象化
type Repository interface {
	Put(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, id string) (*Proposal, error)
	List(ctx context.Context) ([]*Proposal, error)
	Delete(ctx context.Context, ids ...string) error
}
