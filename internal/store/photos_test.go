package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/erazemk/oprema/internal/db"
)

func TestEquipmentPhoto(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	missing, err := GetEquipmentPhoto(ctx, database, "eq-1")
	if err != nil {
		t.Fatalf("GetEquipmentPhoto: %v", err)
	}
	if missing != nil {
		t.Fatal("expected no photo")
	}

	if err := SetEquipmentPhoto(ctx, database, "eq-1", Photo{Image: []byte("big"), Thumbnail: []byte("small"), MIME: "image/png"}); err != nil {
		t.Fatalf("SetEquipmentPhoto: %v", err)
	}
	if err := SetEquipmentPhoto(ctx, database, "eq-1", Photo{Image: []byte("big2"), Thumbnail: []byte("small2"), MIME: "image/jpeg"}); err != nil {
		t.Fatalf("SetEquipmentPhoto replace: %v", err)
	}

	got, _ := GetEquipmentPhoto(ctx, database, "eq-1")
	if got == nil || !bytes.Equal(got.Image, []byte("big2")) || got.MIME != "image/jpeg" {
		t.Fatalf("unexpected photo %+v", got)
	}

	DeleteEquipmentPhoto(ctx, database, "eq-1")
	got, _ = GetEquipmentPhoto(ctx, database, "eq-1")
	if got != nil {
		t.Error("expected photo to be deleted")
	}
}
