package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type MysqlDB struct {
	db *gorm.DB
}

func (db *MysqlDB) scoped(ctx context.Context, key []byte) *gorm.DB {
	return db.db.WithContext(ctx).Model(&StateRecord{}).
		Where("partition_key = ? AND sort_key = ?", string(key), "")
}

func (db *MysqlDB) Put(ctx context.Context, key []byte, value []byte) error {
	var record StateRecord
	err := db.scoped(ctx, key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record.PartitionKey = string(key)
			record.Value = string(value)
			return db.db.WithContext(ctx).Create(&record).Error
		}

		return err
	}

	return db.scoped(ctx, key).Update("value", string(value)).Error
}

func (db *MysqlDB) Delete(ctx context.Context, key []byte) error {
	return db.scoped(ctx, key).Delete(&StateRecord{}).Error
}

func (db *MysqlDB) Has(ctx context.Context, key []byte) (bool, error) {
	var count int64
	if err := db.scoped(ctx, key).Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (db *MysqlDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var record StateRecord
	err := db.scoped(ctx, key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return []byte(record.Value), nil
}

func (db *MysqlDB) CompareAndSwap(ctx context.Context, key []byte, old []byte, value []byte) (bool, error) {
	if old == nil {
		record := StateRecord{PartitionKey: string(key), Value: string(value)}
		err := db.db.WithContext(ctx).Create(&record).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return err == nil, err
	}

	result := db.db.WithContext(ctx).Model(&StateRecord{}).
		Where("partition_key = ? AND sort_key = ? AND value = ?", string(key), "", string(old)).
		Update("value", string(value))
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (db *MysqlDB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
