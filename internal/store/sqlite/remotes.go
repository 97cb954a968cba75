package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/grabarr/grabarr/internal/store/types"
)

func (d *Database) CreateRemote(remote *types.Remote) error {
	if !types.ValidRemoteTypes[remote.Type] {
		return fmt.Errorf("CreateRemote: %w: invalid remote type: %s", ErrValidation, remote.Type)
	}
	config, err := json.Marshal(remote.Config)
	if err != nil {
		return fmt.Errorf("CreateRemote: error encoding config: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"INSERT INTO remotes (name, type, config, credential_id) VALUES (?, ?, ?, ?)",
		remote.Name, remote.Type, string(config), remote.CredentialID)
	if err != nil {
		return fmt.Errorf("CreateRemote: error inserting remote: %w", err)
	}
	remote.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateRemote: error reading remote id: %w", err)
	}
	return nil
}

func scanRemote(row interface{ Scan(...any) error }) (types.Remote, error) {
	var remote types.Remote
	var config string
	var credentialID sql.NullInt64

	if err := row.Scan(&remote.ID, &remote.Name, &remote.Type, &config, &credentialID); err != nil {
		return remote, err
	}
	if err := json.Unmarshal([]byte(config), &remote.Config); err != nil {
		return remote, fmt.Errorf("scanRemote: error decoding config: %w", err)
	}
	if credentialID.Valid {
		id := credentialID.Int64
		remote.CredentialID = &id
	}
	return remote, nil
}

func (d *Database) GetRemote(id int64) (types.Remote, error) {
	row := d.readDb.QueryRow(
		"SELECT id, name, type, config, credential_id FROM remotes WHERE id = ?", id)
	remote, err := scanRemote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remote, fmt.Errorf("GetRemote: remote %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return remote, fmt.Errorf("GetRemote: error scanning remote: %w", err)
	}
	return remote, nil
}

func (d *Database) GetAllRemotes() ([]types.Remote, error) {
	rows, err := d.readDb.Query(
		"SELECT id, name, type, config, credential_id FROM remotes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetAllRemotes: error querying remotes: %w", err)
	}
	defer rows.Close()

	var remotes []types.Remote
	for rows.Next() {
		remote, err := scanRemote(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAllRemotes: error scanning remote: %w", err)
		}
		remotes = append(remotes, remote)
	}
	return remotes, rows.Err()
}

func (d *Database) UpdateRemote(remote types.Remote) error {
	if !types.ValidRemoteTypes[remote.Type] {
		return fmt.Errorf("UpdateRemote: %w: invalid remote type: %s", ErrValidation, remote.Type)
	}
	config, err := json.Marshal(remote.Config)
	if err != nil {
		return fmt.Errorf("UpdateRemote: error encoding config: %w", err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"UPDATE remotes SET name = ?, type = ?, config = ?, credential_id = ? WHERE id = ?",
		remote.Name, remote.Type, string(config), remote.CredentialID, remote.ID)
	if err != nil {
		return fmt.Errorf("UpdateRemote: error updating remote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateRemote: remote %d: %w", remote.ID, ErrNotFound)
	}
	return nil
}

func (d *Database) DeleteRemote(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM remotes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteRemote: error deleting remote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteRemote: remote %d: %w", id, ErrNotFound)
	}
	return nil
}

func (d *Database) CreateCredential(cred *types.Credential) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"INSERT INTO credentials (name, type, data) VALUES (?, ?, ?)",
		cred.Name, cred.Type, cred.Data)
	if err != nil {
		return fmt.Errorf("CreateCredential: error inserting credential: %w", err)
	}
	cred.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("CreateCredential: error reading credential id: %w", err)
	}
	return nil
}

func (d *Database) GetCredential(id int64) (types.Credential, error) {
	var cred types.Credential
	err := d.readDb.QueryRow(
		"SELECT id, name, type, data FROM credentials WHERE id = ?", id).
		Scan(&cred.ID, &cred.Name, &cred.Type, &cred.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return cred, fmt.Errorf("GetCredential: credential %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return cred, fmt.Errorf("GetCredential: error scanning credential: %w", err)
	}
	return cred, nil
}

func (d *Database) GetAllCredentials() ([]types.Credential, error) {
	rows, err := d.readDb.Query("SELECT id, name, type, data FROM credentials ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetAllCredentials: error querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []types.Credential
	for rows.Next() {
		var cred types.Credential
		if err := rows.Scan(&cred.ID, &cred.Name, &cred.Type, &cred.Data); err != nil {
			return nil, fmt.Errorf("GetAllCredentials: error scanning credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (d *Database) UpdateCredential(cred types.Credential) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec(
		"UPDATE credentials SET name = ?, type = ?, data = ? WHERE id = ?",
		cred.Name, cred.Type, cred.Data, cred.ID)
	if err != nil {
		return fmt.Errorf("UpdateCredential: error updating credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateCredential: credential %d: %w", cred.ID, ErrNotFound)
	}
	return nil
}

func (d *Database) DeleteCredential(id int64) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.writeDb.Exec("DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("DeleteCredential: error deleting credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteCredential: credential %d: %w", id, ErrNotFound)
	}
	return nil
}
