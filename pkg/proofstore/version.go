package proofstore

import (
	"encoding/binary"
	"fmt"
)

var (
	keyDBName    = []byte("__db_name")
	keyDBVersion = []byte("__db_version")
)

// checkOrMigrateVersion enforces the §4.2 state contract: a fresh
// store is stamped with dbName and the current version; an existing
// store whose __db_name mismatches is a fatal error; one whose
// __db_version differs from the current version runs the single
// registered migration whose From fields match it, after which the
// store is stamped as current, and opening fails if none matches.
func (s *Store) checkOrMigrateVersion(migrations []Migration) error {
	nameBytes, err := s.db.GetCF(s.ro, s.cf(cfState), keyDBName)
	if err != nil {
		return fmt.Errorf("proofstore: read db name: %w", err)
	}
	defer nameBytes.Free()

	if nameBytes.Size() == 0 {
		return s.stampFreshVersion()
	}
	if string(nameBytes.Data()) != dbName {
		return fmt.Errorf("proofstore: db name mismatch: got %q, want %q", nameBytes.Data(), dbName)
	}

	verBytes, err := s.db.GetCF(s.ro, s.cf(cfState), keyDBVersion)
	if err != nil {
		return fmt.Errorf("proofstore: read db version: %w", err)
	}
	defer verBytes.Free()
	if verBytes.Size() != 3 {
		return fmt.Errorf("proofstore: corrupt db version record")
	}
	maj, min, pat := int(verBytes.Data()[0]), int(verBytes.Data()[1]), int(verBytes.Data()[2])

	for maj != dbVersionMaj || min != dbVersionMin || pat != dbVersionPat {
		m := findMigration(migrations, maj, min, pat)
		if m == nil {
			return fmt.Errorf("proofstore: no migration from version %d.%d.%d to %d.%d.%d",
				maj, min, pat, dbVersionMaj, dbVersionMin, dbVersionPat)
		}
		if err := m.Apply(s); err != nil {
			return fmt.Errorf("proofstore: migration from %d.%d.%d failed: %w", maj, min, pat, err)
		}
		maj, min, pat = dbVersionMaj, dbVersionMin, dbVersionPat
	}
	return s.stampFreshVersion()
}

func findMigration(migrations []Migration, maj, min, pat int) *Migration {
	for i := range migrations {
		m := &migrations[i]
		if m.FromMajor == maj && m.FromMinor == min && m.FromPatch == pat {
			return m
		}
	}
	return nil
}

func (s *Store) stampFreshVersion() error {
	if err := s.db.PutCF(s.wo, s.cf(cfState), keyDBName, []byte(dbName)); err != nil {
		return fmt.Errorf("proofstore: stamp db name: %w", err)
	}
	ver := []byte{byte(dbVersionMaj), byte(dbVersionMin), byte(dbVersionPat)}
	if err := s.db.PutCF(s.wo, s.cf(cfState), keyDBVersion, ver); err != nil {
		return fmt.Errorf("proofstore: stamp db version: %w", err)
	}
	return nil
}

// putUint32BE is a small helper shared by the key-encoding files.
func putUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
