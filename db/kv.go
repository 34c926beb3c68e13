package db

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

// GetUint64 retrieves the decimal value of a key.
// If not found, return 0 and false
func GetUint64(ctx context.Context, db IDB, key string) (uint64, bool, error) {
	val, err := db.Get(ctx, []byte(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}

		return 0, false, err
	}

	n, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SetUint64 sets uint64 value of a key in the database
func SetUint64(ctx context.Context, db IDB, key string, value uint64) error {
	return db.Put(ctx, []byte(key), []byte(strconv.FormatUint(value, 10)))
}

// GetJSON decodes the value of a key into v. found is false when the key is absent.
func GetJSON(ctx context.Context, db IDB, key string, v any) (found bool, err error) {
	val, err := db.Get(ctx, []byte(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, json.Unmarshal(val, v)
}

func PutJSON(ctx context.Context, db IDB, key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return db.Put(ctx, []byte(key), val)
}
