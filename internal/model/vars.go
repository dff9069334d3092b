package model

import "github.com/zeromicro/go-zero/core/stores/sqlx"

// ErrNotFound is re-exported so callers don't import sqlx for the sentinel.
var ErrNotFound = sqlx.ErrNotFound
