package model

import "testing"

func TestUnitTypeParents(t *testing.T) {
	if _, ok := UnitTypeBattalion.ParentType(); ok {
		t.Error("battalion should have no parent type")
	}
	if p, _ := UnitTypeCompany.ParentType(); p != UnitTypeBattalion {
		t.Errorf("company parent = %q, want battalion", p)
	}
	if p, _ := UnitTypePlatoon.ParentType(); p != UnitTypeCompany {
		t.Errorf("platoon parent = %q, want company", p)
	}
	if UnitType("division").Valid() {
		t.Error("unknown unit type should be invalid")
	}
}

func TestHolderFromIDs(t *testing.T) {
	tests := []struct {
		unitID, personnelID string
		want                Holder
		wantErr             bool
	}{
		{"u1", "", UnitHolder("u1"), false},
		{"", "p1", PersonnelHolder("p1"), false},
		{"u1", "p1", Holder{}, true},
		{"", "", Holder{}, true},
	}

	for _, tt := range tests {
		got, err := HolderFromIDs(tt.unitID, tt.personnelID)
		if (err != nil) != tt.wantErr {
			t.Errorf("HolderFromIDs(%q, %q) error = %v, wantErr %v", tt.unitID, tt.personnelID, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("HolderFromIDs(%q, %q) = %v, want %v", tt.unitID, tt.personnelID, got, tt.want)
		}
	}
}

func TestRestoreStatus(t *testing.T) {
	tests := []struct {
		prior, want string
	}{
		{StatusServiceable, StatusServiceable},
		{StatusAssigned, StatusAssigned},
		{StatusUnserviceable, StatusUnserviceable},
		{StatusPendingTransfer, StatusServiceable},
		{"available", StatusServiceable},
		{"", StatusServiceable},
	}

	for _, tt := range tests {
		if got := RestoreStatus(tt.prior); got != tt.want {
			t.Errorf("RestoreStatus(%q) = %q, want %q", tt.prior, got, tt.want)
		}
	}
}
