package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Photo is a stored equipment image with its thumbnail.
type Photo struct {
	Image     []byte
	Thumbnail []byte
	MIME      string
}

// SetEquipmentPhoto stores or replaces the photo of an equipment record.
func SetEquipmentPhoto(ctx context.Context, db *sql.DB, equipmentID string, p Photo) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO equipment_photos (equipment_id, image, thumbnail, mime, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (equipment_id) DO UPDATE SET
		   image = excluded.image,
		   thumbnail = excluded.thumbnail,
		   mime = excluded.mime,
		   updated_at = excluded.updated_at`,
		equipmentID, p.Image, p.Thumbnail, p.MIME,
	)
	if err != nil {
		return fmt.Errorf("storing equipment photo: %w", err)
	}
	return nil
}

// GetEquipmentPhoto returns the photo of an equipment record, or nil.
func GetEquipmentPhoto(ctx context.Context, db *sql.DB, equipmentID string) (*Photo, error) {
	p := &Photo{}
	err := db.QueryRowContext(ctx,
		`SELECT image, thumbnail, mime FROM equipment_photos WHERE equipment_id = ?`, equipmentID,
	).Scan(&p.Image, &p.Thumbnail, &p.MIME)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting equipment photo: %w", err)
	}
	return p, nil
}

// DeleteEquipmentPhoto removes the photo of an equipment record.
func DeleteEquipmentPhoto(ctx context.Context, db *sql.DB, equipmentID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM equipment_photos WHERE equipment_id = ?`, equipmentID)
	if err != nil {
		return fmt.Errorf("deleting equipment photo: %w", err)
	}
	return nil
}
