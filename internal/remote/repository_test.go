package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
)

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	m.objects[bucket+"/"+path] = data
	return bucket + "/" + path, nil
}

func (m *memBlobs) PublicURL(bucket, path string) string {
	return "https://cdn.test/" + bucket + "/" + path
}

func TestRepositoryDelegates(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	repo := NewRepository(newPostgresRepository(&fakeQuerier{row: fakeRow{id: "r1"}}, "damage_reports"), blobs)

	ref, err := repo.UploadBlob(context.Background(), "photos", "a/b.jpg", []byte{1}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "photos/a/b.jpg", ref)
	assert.Equal(t, "https://cdn.test/photos/a/b.jpg", repo.PublicURL("photos", "a/b.jpg"))

	row, err := repo.InsertRecord(context.Background(), "damage_reports", map[string]any{"id": "r1"})
	require.NoError(t, err)
	assert.True(t, row.Inserted)
}

func TestDisabled(t *testing.T) {
	var d Disabled
	_, err := d.InsertRecord(context.Background(), "t", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteNotConfigured))
	_, err = d.UploadBlob(context.Background(), "b", "k", nil, "")
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteNotConfigured))
	assert.Empty(t, d.PublicURL("b", "k"))
}

type checkedBlobs struct {
	memBlobs
	missing string
	checked []string
}

func (c *checkedBlobs) TestConnection(ctx context.Context, bucket string) error {
	c.checked = append(c.checked, bucket)
	if bucket == c.missing {
		return apperrors.New(apperrors.ErrRemoteNotConfigured, "no such bucket")
	}
	return nil
}

func TestRepositoryCheck(t *testing.T) {
	ctx := context.Background()

	blobs := &checkedBlobs{memBlobs: memBlobs{objects: map[string][]byte{}}}
	repo := NewRepository(newPostgresRepository(&fakeQuerier{}), blobs)
	require.NoError(t, repo.Check(ctx, "damage-images", "damage-voice"))
	assert.Equal(t, []string{"damage-images", "damage-voice"}, blobs.checked)

	blobs = &checkedBlobs{memBlobs: memBlobs{objects: map[string][]byte{}}, missing: "damage-voice"}
	repo = NewRepository(newPostgresRepository(&fakeQuerier{}), blobs)
	assert.True(t, apperrors.Is(repo.Check(ctx, "damage-images", "damage-voice"), apperrors.ErrRemoteNotConfigured))

	down := NewRepository(newPostgresRepository(&fakeQuerier{pingErr: errors.New("refused")}), blobs)
	assert.True(t, apperrors.Is(down.Check(ctx), apperrors.ErrSyncOffline))
	assert.Error(t, Disabled{}.Check(ctx))
}
