package model

import "time"

// Key is a license key record. RedeemedAt, RedeemedBy, RedeemedIP and
// HardwareID are write-once: they are populated by the first successful
// redemption (or by a ban, for RedeemedBy/RedeemedAt) and never overwritten.
type Key struct {
	ID         string     `json:"id" db:"id"`
	KeyString  string     `json:"key" db:"key_string"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty" db:"redeemed_at"`
	RedeemedBy *string    `json:"redeemed_by,omitempty" db:"redeemed_by"`
	RedeemedIP *string    `json:"redeemed_ip,omitempty" db:"redeemed_ip"`
	HardwareID *string    `json:"hwid,omitempty" db:"redeemed_hwid"`
}

// Redeemed reports whether first-use metadata has been recorded.
func (k *Key) Redeemed() bool {
	return k.RedeemedAt != nil
}

// Bound reports whether a hardware id has been bound to the key.
func (k *Key) Bound() bool {
	return k.HardwareID != nil && *k.HardwareID != ""
}

// PoolConfig controls the database connection pool behavior for the key store.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns sensible defaults for a database connection pool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}
