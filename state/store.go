// Package state persists the settlement engines' records into a key-value
// backend. Every record is stored as JSON under a typed prefix, with
// account-keyed reverse indices maintained alongside the forward records.
package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"fusiond/native/escrow"
	"fusiond/native/pool"
	"fusiond/native/solver"
	"fusiond/native/swap"
	"fusiond/storage"
)

const (
	prefixEscrowOrder  = "escrow/order/"
	prefixEscrowIndex  = "escrow/index/"
	prefixEscrowToken  = "escrow/token/"
	prefixEscrowIntent = "escrow/intent/"
	keyEscrowStats     = "escrow/stats"

	prefixSwap      = "swap/record/"
	prefixSwapIndex = "swap/index/"

	prefixPool         = "pool/record/"
	prefixPoolIndex    = "pool/index/"
	prefixPoolProvider = "pool/provider/"
	prefixPoolReward   = "pool/reward/"
	prefixPoolIntent   = "pool/intent/"

	prefixSolver       = "solver/record/"
	prefixRequest      = "solver/request/"
	prefixQuote        = "solver/quote/"
	prefixSolverOrder  = "solver/order/"
	prefixSolverIndex  = "solver/index/"
	keySolverStats     = "solver/stats"
)

// Store implements the persistence interfaces of the escrow, swap, pool and
// solver engines over one storage.Database. The engines serialize their own
// mutations, so Store does no locking of its own.
type Store struct {
	db storage.Database
}

// NewStore wraps a database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) putJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), raw)
}

func (s *Store) getJSON(key string, dst any) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) appendIndex(key, id string) error {
	var ids []string
	if _, err := s.getJSON(key, &ids); err != nil {
		return err
	}
	ids = append(ids, id)
	return s.putJSON(key, ids)
}

func (s *Store) readIndex(key string) ([]string, error) {
	var ids []string
	if _, err := s.getJSON(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// escrow.State

func (s *Store) EscrowPut(o *escrow.Order) error {
	return s.putJSON(prefixEscrowOrder+o.ID, o)
}

func (s *Store) EscrowGet(id string) (*escrow.Order, bool, error) {
	var record escrow.Order
	ok, err := s.getJSON(prefixEscrowOrder+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) EscrowIndexAdd(account, id string) error {
	return s.appendIndex(prefixEscrowIndex+account, id)
}

func (s *Store) EscrowOrdersByAccount(account string) ([]string, error) {
	return s.readIndex(prefixEscrowIndex + account)
}

func (s *Store) EscrowTokenPut(symbol string, allowed bool) error {
	return s.putJSON(prefixEscrowToken+symbol, allowed)
}

func (s *Store) EscrowTokenAllowed(symbol string) (bool, error) {
	var allowed bool
	if _, err := s.getJSON(prefixEscrowToken+symbol, &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func (s *Store) EscrowStatsGet() (*escrow.Stats, error) {
	var stats escrow.Stats
	ok, err := s.getJSON(keyEscrowStats, &stats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&escrow.Stats{}).Clone(), nil
	}
	return &stats, nil
}

func (s *Store) EscrowStatsPut(stats *escrow.Stats) error {
	return s.putJSON(keyEscrowStats, stats)
}

func (s *Store) EscrowIntentPut(i *escrow.TransferIntent) error {
	return s.putJSON(prefixEscrowIntent+i.OrderID, i)
}

func (s *Store) EscrowIntentGet(orderID string) (*escrow.TransferIntent, bool, error) {
	var record escrow.TransferIntent
	ok, err := s.getJSON(prefixEscrowIntent+orderID, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) EscrowIntentDelete(orderID string) error {
	return s.db.Delete([]byte(prefixEscrowIntent + orderID))
}

// swap.State

func (s *Store) SwapPut(record *swap.CrossChainSwap) error {
	return s.putJSON(prefixSwap+record.ID, record)
}

func (s *Store) SwapGet(id string) (*swap.CrossChainSwap, bool, error) {
	var record swap.CrossChainSwap
	ok, err := s.getJSON(prefixSwap+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) SwapIndexAdd(account, id string) error {
	return s.appendIndex(prefixSwapIndex+account, id)
}

func (s *Store) SwapsByAccount(account string) ([]string, error) {
	return s.readIndex(prefixSwapIndex + account)
}

// pool.State

func (s *Store) PoolPut(p *pool.Pool) error {
	return s.putJSON(prefixPool+p.ID, p)
}

func (s *Store) PoolGet(id string) (*pool.Pool, bool, error) {
	var record pool.Pool
	ok, err := s.getJSON(prefixPool+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) PoolIndexAdd(solverAccount, id string) error {
	return s.appendIndex(prefixPoolIndex+solverAccount, id)
}

func (s *Store) PoolsBySolver(solverAccount string) ([]string, error) {
	return s.readIndex(prefixPoolIndex + solverAccount)
}

func providerKey(poolID, account string) string {
	return prefixPoolProvider + poolID + "/" + account
}

func (s *Store) ProviderPut(p *pool.Provider) error {
	return s.putJSON(providerKey(p.PoolID, p.Account), p)
}

func (s *Store) ProviderGet(poolID, account string) (*pool.Provider, bool, error) {
	var record pool.Provider
	ok, err := s.getJSON(providerKey(poolID, account), &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) RewardPut(r *pool.Reward) error {
	return s.putJSON(prefixPoolReward+r.PoolID, r)
}

func (s *Store) RewardGet(poolID string) (*pool.Reward, bool, error) {
	var record pool.Reward
	ok, err := s.getJSON(prefixPoolReward+poolID, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) PoolIntentPut(i *pool.TransferIntent) error {
	return s.putJSON(prefixPoolIntent+i.PoolID, i)
}

func (s *Store) PoolIntentGet(poolID string) (*pool.TransferIntent, bool, error) {
	var record pool.TransferIntent
	ok, err := s.getJSON(prefixPoolIntent+poolID, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) PoolIntentDelete(poolID string) error {
	return s.db.Delete([]byte(prefixPoolIntent + poolID))
}

// solver.State

func (s *Store) SolverPut(record *solver.Solver) error {
	return s.putJSON(prefixSolver+record.Account, record)
}

func (s *Store) SolverGet(account string) (*solver.Solver, bool, error) {
	var record solver.Solver
	ok, err := s.getJSON(prefixSolver+account, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) RequestPut(r *solver.QuoteRequest) error {
	return s.putJSON(prefixRequest+r.ID, r)
}

func (s *Store) RequestGet(id string) (*solver.QuoteRequest, bool, error) {
	var record solver.QuoteRequest
	ok, err := s.getJSON(prefixRequest+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

// RequestDelete reports whether the pending request was present, which is the
// primitive the matcher's first-committed-wins quote acceptance rests on.
func (s *Store) RequestDelete(id string) (bool, error) {
	key := []byte(prefixRequest + id)
	present, err := s.db.Has(key)
	if err != nil || !present {
		return false, err
	}
	if err := s.db.Delete(key); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) QuotePut(q *solver.QuoteResponse) error {
	return s.putJSON(prefixQuote+q.ID, q)
}

func (s *Store) QuoteGet(id string) (*solver.QuoteResponse, bool, error) {
	var record solver.QuoteResponse
	ok, err := s.getJSON(prefixQuote+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) SolverOrderPut(o *solver.Order) error {
	return s.putJSON(prefixSolverOrder+o.ID, o)
}

func (s *Store) SolverOrderGet(id string) (*solver.Order, bool, error) {
	var record solver.Order
	ok, err := s.getJSON(prefixSolverOrder+id, &record)
	if !ok || err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (s *Store) SolverOrderIndexAdd(account, id string) error {
	return s.appendIndex(prefixSolverIndex+account, id)
}

func (s *Store) SolverOrdersByAccount(account string) ([]string, error) {
	return s.readIndex(prefixSolverIndex + account)
}

func (s *Store) SolverStatsGet() (*solver.Stats, error) {
	var stats solver.Stats
	ok, err := s.getJSON(keySolverStats, &stats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&solver.Stats{}).Clone(), nil
	}
	return &stats, nil
}

func (s *Store) SolverStatsPut(stats *solver.Stats) error {
	return s.putJSON(keySolverStats, stats)
}
