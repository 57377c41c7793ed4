package banstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GormBanRecord is the database row backing a BanRecord.
type GormBanRecord struct {
	gorm.Model
	JID       string `gorm:"column:jid;index"`
	Nickname  string `gorm:"index"`
	ExpiresAt *time.Time
	Issuer    string
	Comment   string
}

// GormProtectedRoom is the database row for a protected room.
type GormProtectedRoom struct {
	gorm.Model
	Room string `gorm:"uniqueIndex"`
}

// Gormstore is a gorm-backed implementation of the Store interface. It works
// against sqlite or postgres (see SetupDatabase).
type Gormstore struct {
	db *gorm.DB
}

func NewGormstore(db *gorm.DB) (*Gormstore, error) {
	if err := db.AutoMigrate(&GormBanRecord{}, &GormProtectedRoom{}); err != nil {
		return nil, fmt.Errorf("migrating ban tables: %w", err)
	}
	return &Gormstore{db: db}, nil
}

func (r *GormBanRecord) toRecord() BanRecord {
	return BanRecord{
		JID:       r.JID,
		Nickname:  r.Nickname,
		ExpiresAt: r.ExpiresAt,
		Issuer:    r.Issuer,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

// findRow locates a row by bare JID or nickname, both case-insensitive.
// Either argument may be empty. Returns gorm.ErrRecordNotFound when no row
// matches.
func findRow(tx *gorm.DB, jid, nickname string) (*GormBanRecord, error) {
	var row GormBanRecord
	if jid != "" {
		err := tx.Where("LOWER(jid) = ?", strings.ToLower(jid)).First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if nickname != "" {
		err := tx.Where("nickname <> '' AND LOWER(nickname) = ?", strings.ToLower(nickname)).First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// findNicknameOnlyRow matches rows that carry a nickname but no JID yet.
func findNicknameOnlyRow(tx *gorm.DB, nickname string) (*GormBanRecord, error) {
	var row GormBanRecord
	err := tx.Where("jid = '' AND LOWER(nickname) = ?", strings.ToLower(nickname)).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Gormstore) Upsert(ctx context.Context, rec BanRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing *GormBanRecord
		var err error
		if rec.JID != "" {
			existing, err = findRow(tx, rec.JID, "")
			// a record upgrading a nickname-only ban with a learned JID must
			// replace that ban, not sit next to it
			if errors.Is(err, gorm.ErrRecordNotFound) && rec.Nickname != "" {
				existing, err = findNicknameOnlyRow(tx, rec.Nickname)
			}
		} else {
			existing, err = findRow(tx, "", rec.Nickname)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if existing != nil {
			existing.JID = rec.JID
			existing.Nickname = rec.Nickname
			existing.ExpiresAt = rec.ExpiresAt
			existing.Issuer = rec.Issuer
			existing.Comment = rec.Comment
			return tx.Save(existing).Error
		}

		row := GormBanRecord{
			JID:       rec.JID,
			Nickname:  rec.Nickname,
			ExpiresAt: rec.ExpiresAt,
			Issuer:    rec.Issuer,
			Comment:   rec.Comment,
		}
		return tx.Create(&row).Error
	})
}

func (s *Gormstore) Delete(ctx context.Context, jid, nickname string) (*BanRecord, error) {
	var deleted *BanRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findRow(tx, jid, nickname)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		rec := row.toRecord()
		deleted = &rec
		return tx.Unscoped().Delete(row).Error
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Gormstore) FindByJID(ctx context.Context, jid string) (*BanRecord, error) {
	row, err := findRow(s.db.WithContext(ctx), jid, "")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

func (s *Gormstore) FindByNickname(ctx context.Context, nickname string) (*BanRecord, error) {
	row, err := findRow(s.db.WithContext(ctx), "", nickname)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

func (s *Gormstore) ListAll(ctx context.Context) ([]BanRecord, error) {
	var rows []GormBanRecord
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]BanRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *Gormstore) ListExpired(ctx context.Context, now time.Time) ([]BanRecord, error) {
	var rows []GormBanRecord
	err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]BanRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *Gormstore) Search(ctx context.Context, substr string) ([]BanRecord, error) {
	needle := "%" + strings.ToLower(substr) + "%"
	var rows []GormBanRecord
	err := s.db.WithContext(ctx).
		Where("LOWER(jid) LIKE ? OR LOWER(nickname) LIKE ? OR LOWER(comment) LIKE ?", needle, needle, needle).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]BanRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *Gormstore) AddRoom(ctx context.Context, room string) error {
	var row GormProtectedRoom
	return s.db.WithContext(ctx).Where(GormProtectedRoom{Room: room}).FirstOrCreate(&row).Error
}

func (s *Gormstore) RemoveRoom(ctx context.Context, room string) error {
	return s.db.WithContext(ctx).Unscoped().Where("room = ?", room).Delete(&GormProtectedRoom{}).Error
}

func (s *Gormstore) ListRooms(ctx context.Context) ([]string, error) {
	var rows []GormProtectedRoom
	if err := s.db.WithContext(ctx).Order("room").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Room)
	}
	return out, nil
}

var _ Store = (*Gormstore)(nil)
