package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"pharmpos/internal/domain"
)

// DefaultBillsKey is the hash holding saved bills
const DefaultBillsKey = "pharmpos:saved_bills"

// RedisBills хранит сохранённые чеки в одном Redis hash (поле: id, значение: JSON)
type RedisBills struct {
	client *redis.Client
	key    string
}

var _ BillRepository = (*RedisBills)(nil)

func NewRedisBills(client *redis.Client, key string) *RedisBills {
	if key == "" {
		key = DefaultBillsKey
	}
	return &RedisBills{client: client, key: key}
}

func (r *RedisBills) Save(ctx context.Context, b *domain.SavedBill) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bill %d: %w", b.ID, err)
	}
	return r.client.HSet(ctx, r.key, strconv.FormatInt(b.ID, 10), data).Err()
}

func (r *RedisBills) GetByID(ctx context.Context, id int64) (*domain.SavedBill, error) {
	data, err := r.client.HGet(ctx, r.key, strconv.FormatInt(id, 10)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var b domain.SavedBill
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bill %d: %w", id, err)
	}
	return &b, nil
}

// List returns saved bills oldest first.
func (r *RedisBills) List(ctx context.Context) ([]domain.SavedBill, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.SavedBill, 0, len(all))
	for field, raw := range all {
		var b domain.SavedBill
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("decode bill %s: %w", field, err)
		}
		out = append(out, b)
	}
	sortSavedBills(out)
	return out, nil
}

func (r *RedisBills) Delete(ctx context.Context, id int64) error {
	n, err := r.client.HDel(ctx, r.key, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
