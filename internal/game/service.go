package game

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"nations/internal/catalog"
	"nations/internal/events"
	"nations/internal/ledger"
)

const publishTimeout = 2 * time.Second

type Options struct {
	// Settings defaults to DefaultSettings when nil. Zero values are kept as given.
	Settings  *Settings
	Publisher events.Publisher
}

type Service struct {
	store    ledger.Store
	catalog  *catalog.Catalog
	settings Settings
	events   events.Publisher
	log      *slog.Logger
}

func NewService(store ledger.Store, cat *catalog.Catalog, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	return &Service{
		store:    store,
		catalog:  cat,
		settings: settings,
		events:   opts.Publisher,
		log:      logger,
	}
}

func (s *Service) CreateCountry(ctx context.Context, caller Caller, name string) (ledger.Country, error) {
	if !caller.CanCreate {
		return ledger.Country{}, fmt.Errorf("%w: creating a country requires the creator role", ErrUnauthorized)
	}
	if err := validateOwner(caller.OwnerID); err != nil {
		return ledger.Country{}, err
	}
	name = strings.TrimSpace(name)
	if err := validateCountryName(name); err != nil {
		return ledger.Country{}, err
	}

	out, err := s.store.Mutate(ctx, caller.OwnerID, func(_ ledger.Country, exists bool) (ledger.Country, error) {
		if exists {
			return ledger.Country{}, fmt.Errorf("%w: you already own a country", ErrAlreadyExists)
		}
		return ledger.Country{
			Name:   name,
			Wallet: s.settings.StartingWallet,
			Income: s.settings.StartingIncome,
			Items:  map[string]int64{},
		}, nil
	})
	if err != nil {
		return ledger.Country{}, err
	}
	s.log.Info("country created", "owner", caller.OwnerID, "name", name)
	ev := events.New(events.TypeCountryCreated)
	ev.OwnerID = caller.OwnerID
	ev.Amount = out.Wallet
	s.publish(ctx, ev)
	return out, nil
}

func (s *Service) Balance(ctx context.Context, ownerID string) (ledger.Country, error) {
	if err := validateOwner(ownerID); err != nil {
		return ledger.Country{}, err
	}
	return s.store.Get(ctx, ownerID)
}

func (s *Service) Shop() []catalog.Item {
	return s.catalog.Items()
}

func (s *Service) Buy(ctx context.Context, caller Caller, itemID string) (Purchase, error) {
	if err := validateOwner(caller.OwnerID); err != nil {
		return Purchase{}, err
	}
	var item catalog.Item
	out, err := s.store.Mutate(ctx, caller.OwnerID, func(cur ledger.Country, exists bool) (ledger.Country, error) {
		if !exists {
			return ledger.Country{}, fmt.Errorf("%w: create a country first", ErrNotFound)
		}
		it, err := s.catalog.Lookup(itemID)
		if err != nil {
			return ledger.Country{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if cur.Wallet < it.Price {
			return ledger.Country{}, fmt.Errorf("%w: %s costs %d, wallet has %d", ErrInsufficientFunds, it.ID, it.Price, cur.Wallet)
		}
		income, err := checkedAdd(cur.Income, it.Income)
		if err != nil {
			return ledger.Country{}, err
		}
		cur.Wallet -= it.Price
		cur.Income = income
		cur.Items[it.ID]++
		item = it
		return cur, nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.log.Info("item purchased", "owner", caller.OwnerID, "item", item.ID, "price", item.Price)
	ev := events.New(events.TypeItemPurchased)
	ev.OwnerID = caller.OwnerID
	ev.Item = item.ID
	ev.Amount = item.Price
	s.publish(ctx, ev)
	return Purchase{Item: item, Country: out}, nil
}

func (s *Service) Transfer(ctx context.Context, caller Caller, toOwnerID string, amount int64) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidArgument)
	}
	if err := validateOwner(caller.OwnerID); err != nil {
		return TransferResult{}, err
	}
	if err := validateOwner(toOwnerID); err != nil {
		return TransferResult{}, err
	}
	if caller.OwnerID == toOwnerID {
		return TransferResult{}, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidArgument)
	}
	if _, err := s.store.Get(ctx, caller.OwnerID); err != nil {
		return TransferResult{}, fmt.Errorf("create a country first: %w", err)
	}
	if _, err := s.store.Get(ctx, toOwnerID); err != nil {
		return TransferResult{}, fmt.Errorf("recipient has no country: %w", err)
	}

	sender, receiver, err := s.store.MutatePair(ctx, caller.OwnerID, toOwnerID, func(from, to ledger.Country) (ledger.Country, ledger.Country, error) {
		if from.Wallet < amount {
			return ledger.Country{}, ledger.Country{}, fmt.Errorf("%w: wallet has %d", ErrInsufficientFunds, from.Wallet)
		}
		credited, err := checkedAdd(to.Wallet, amount)
		if err != nil {
			return ledger.Country{}, ledger.Country{}, err
		}
		from.Wallet -= amount
		to.Wallet = credited
		return from, to, nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.log.Info("transfer completed", "from", caller.OwnerID, "to", toOwnerID, "amount", amount)
	ev := events.New(events.TypeTransfer)
	ev.OwnerID = caller.OwnerID
	ev.CounterpartyID = toOwnerID
	ev.Amount = amount
	s.publish(ctx, ev)
	return TransferResult{Amount: amount, Sender: sender, Receiver: receiver}, nil
}

// Leaderboard ranks by wallet descending, ties broken by ascending owner id.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]LeaderboardRow, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Wallet != all[j].Wallet {
			return all[i].Wallet > all[j].Wallet
		}
		return all[i].OwnerID < all[j].OwnerID
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]LeaderboardRow, 0, len(all))
	for i, c := range all {
		out = append(out, LeaderboardRow{
			Rank:    int64(i + 1),
			OwnerID: c.OwnerID,
			Name:    c.Name,
			Wallet:  c.Wallet,
			Income:  c.Income,
		})
	}
	return out, nil
}

func (s *Service) Countries(ctx context.Context, caller Caller) ([]ledger.Country, error) {
	if !caller.IsAdmin {
		return nil, ErrUnauthorized
	}
	return s.store.List(ctx)
}

// SetField overwrites wallet or income without bounds checks.
func (s *Service) SetField(ctx context.Context, caller Caller, ownerID, field string, value int64) (ledger.Country, error) {
	if !caller.IsAdmin {
		return ledger.Country{}, ErrUnauthorized
	}
	if err := validateOwner(ownerID); err != nil {
		return ledger.Country{}, err
	}
	var f Field
	out, err := s.store.Mutate(ctx, ownerID, func(cur ledger.Country, exists bool) (ledger.Country, error) {
		if !exists {
			return ledger.Country{}, fmt.Errorf("%w: that user has no country", ErrNotFound)
		}
		parsed, err := ParseField(field)
		if err != nil {
			return ledger.Country{}, err
		}
		f = parsed
		switch f {
		case FieldWallet:
			cur.Wallet = value
		case FieldIncome:
			cur.Income = value
		}
		return cur, nil
	})
	if err != nil {
		return ledger.Country{}, err
	}
	s.log.Info("country field set", "admin", caller.OwnerID, "owner", ownerID, "field", string(f), "value", value)
	ev := events.New(events.TypeFieldSet)
	ev.OwnerID = ownerID
	ev.Field = string(f)
	ev.Amount = value
	s.publish(ctx, ev)
	return out, nil
}

func (s *Service) DeleteCountry(ctx context.Context, caller Caller, ownerID string) error {
	if !caller.IsAdmin {
		return ErrUnauthorized
	}
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ownerID); err != nil {
		return err
	}
	s.log.Info("country deleted", "admin", caller.OwnerID, "owner", ownerID)
	ev := events.New(events.TypeCountryDeleted)
	ev.OwnerID = ownerID
	s.publish(ctx, ev)
	return nil
}

func (s *Service) AdjustBalance(ctx context.Context, caller Caller, ownerID string, delta int64, sign Sign) (ledger.Country, error) {
	if !caller.IsAdmin {
		return ledger.Country{}, ErrUnauthorized
	}
	if delta <= 0 {
		return ledger.Country{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidArgument)
	}
	if sign != Add && sign != Remove {
		return ledger.Country{}, fmt.Errorf("%w: unknown adjustment sign", ErrInvalidArgument)
	}
	if err := validateOwner(ownerID); err != nil {
		return ledger.Country{}, err
	}
	out, err := s.store.Mutate(ctx, ownerID, func(cur ledger.Country, exists bool) (ledger.Country, error) {
		if !exists {
			return ledger.Country{}, fmt.Errorf("%w: that user has no country", ErrNotFound)
		}
		if sign == Remove {
			if cur.Wallet < delta {
				return ledger.Country{}, fmt.Errorf("%w: wallet has %d", ErrInsufficientFunds, cur.Wallet)
			}
			cur.Wallet -= delta
			return cur, nil
		}
		next, err := checkedAdd(cur.Wallet, delta)
		if err != nil {
			return ledger.Country{}, err
		}
		cur.Wallet = next
		return cur, nil
	})
	if err != nil {
		return ledger.Country{}, err
	}
	signed := delta
	if sign == Remove {
		signed = -delta
	}
	s.log.Info("balance adjusted", "admin", caller.OwnerID, "owner", ownerID, "delta", signed)
	ev := events.New(events.TypeBalanceAdjusted)
	ev.OwnerID = ownerID
	ev.Amount = signed
	s.publish(ctx, ev)
	return out, nil
}

func (s *Service) AddBalance(ctx context.Context, caller Caller, ownerID string, amount int64) (ledger.Country, error) {
	return s.AdjustBalance(ctx, caller, ownerID, amount, Add)
}

func (s *Service) RemoveBalance(ctx context.Context, caller Caller, ownerID string, amount int64) (ledger.Country, error) {
	return s.AdjustBalance(ctx, caller, ownerID, amount, Remove)
}

// Payout adds each country's income to its wallet in one whole-ledger mutation.
func (s *Service) Payout(ctx context.Context) (int, error) {
	n, err := s.store.MutateAll(ctx, func(c *ledger.Country) {
		c.Wallet = saturatingAdd(c.Wallet, c.Income)
	})
	if err != nil {
		return 0, err
	}
	ev := events.New(events.TypePayout)
	ev.Count = n
	s.publish(ctx, ev)
	return n, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", "type", ev.Type, "owner", ev.OwnerID, "err", err)
	}
}
