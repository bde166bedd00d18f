package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	keyProfile    = "profile"
	keyBearer     = "bearer_token"
	keyLogoutFlag = "logout_flag"
)

// RecordModel is the Bun model for namespaced session records. Each entry is
// an opaque JSON value keyed by namespace plus record name, so one table can
// hold the cache for many session namespaces.
type RecordModel struct {
	bun.BaseModel `bun:"table:session_records"`

	Namespace string    `bun:"namespace,pk"`
	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// Bun is a session.Store persisted through a Bun database. Restarting the
// process with the same namespace recovers the cached profile, bearer
// fallback, and any pending logout flag.
type Bun struct {
	db        *bun.DB
	namespace string
	jar       http.CookieJar
}

// NewBun wraps an existing Bun database. Call Init before first use to make
// sure the records table exists.
func NewBun(db *bun.DB, namespace string) (*Bun, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	if namespace == "" {
		namespace = "default"
	}

	return &Bun{
		db:        db,
		namespace: namespace,
		jar:       jar,
	}, nil
}

// NewSQLite opens a SQLite database at the given DSN and returns an
// initialized store over it.
func NewSQLite(ctx context.Context, dsn, namespace string) (*Bun, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	s, err := NewBun(bun.NewDB(sqldb, sqlitedialect.New()), namespace)
	if err != nil {
		return nil, err
	}

	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Init creates the records table when missing.
func (s *Bun) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*RecordModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *Bun) Jar() http.CookieJar {
	return s.jar
}

func (s *Bun) Profile(ctx context.Context) (*session.UserProfile, error) {
	data, err := s.get(ctx, keyProfile)
	if err != nil || data == nil {
		return nil, err
	}

	var profile session.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Bun) SaveProfile(ctx context.Context, profile *session.UserProfile) error {
	if profile == nil {
		return s.delete(ctx, keyProfile)
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.put(ctx, keyProfile, data)
}

func (s *Bun) BearerToken(ctx context.Context) (string, error) {
	data, err := s.get(ctx, keyBearer)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Bun) SaveBearerToken(ctx context.Context, token string) error {
	return s.put(ctx, keyBearer, []byte(token))
}

func (s *Bun) LogoutFlag(ctx context.Context) (*session.LogoutFlag, error) {
	data, err := s.get(ctx, keyLogoutFlag)
	if err != nil || data == nil {
		return nil, err
	}

	var flag session.LogoutFlag
	if err := json.Unmarshal(data, &flag); err != nil {
		return nil, err
	}
	return &flag, nil
}

func (s *Bun) SetLogoutFlag(ctx context.Context, flag session.LogoutFlag) error {
	data, err := json.Marshal(flag)
	if err != nil {
		return err
	}
	return s.put(ctx, keyLogoutFlag, data)
}

func (s *Bun) ClearLogoutFlag(ctx context.Context) error {
	return s.delete(ctx, keyLogoutFlag)
}

// PurgeSession deletes every record in the namespace except the logout flag.
func (s *Bun) PurgeSession(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*RecordModel)(nil)).
		Where("namespace = ? AND key != ?", s.namespace, keyLogoutFlag).
		Exec(ctx)
	return err
}

func (s *Bun) get(ctx context.Context, key string) ([]byte, error) {
	var record RecordModel
	err := s.db.NewSelect().
		Model(&record).
		Where("namespace = ? AND key = ?", s.namespace, key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record.Value, nil
}

func (s *Bun) put(ctx context.Context, key string, value []byte) error {
	record := &RecordModel{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (namespace, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Bun) delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*RecordModel)(nil)).
		Where("namespace = ? AND key = ?", s.namespace, key).
		Exec(ctx)
	return err
}
