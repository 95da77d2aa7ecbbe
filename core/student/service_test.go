package student_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brunoball/Cooperadora-sub000/core/student"
	dummydb "github.com/Brunoball/Cooperadora-sub000/storage/database/dummy"
	testutil "github.com/Brunoball/Cooperadora-sub000/tests"
)

func TestService_GetByID(t *testing.T) {
	ctx := context.Background()
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewStudentRepository(db)
	svc := student.NewService(repo)
	stud := testutil.CreateStudent(t, repo, "Ana", "ana@test.ar", 1)

	got, err := svc.GetByID(ctx, stud.ID)
	require.NoError(t, err)
	assert.Equal(t, stud, got)

	for _, id := range []int64{0, -1, stud.ID + 1} {
		_, err = svc.GetByID(ctx, id)
		assert.ErrorIs(t, err, student.ErrNotFound)
	}
}

func TestStudent_MailAddress(t *testing.T) {
	tests := []struct {
		name string
		stud student.Student
		want string
	}{
		{name: "with email", stud: student.Student{DisplayName: "Ana", Email: "ana@test.ar"}, want: `"Ana" <ana@test.ar>`},
		{name: "without name", stud: student.Student{Email: "ana@test.ar"}, want: "<ana@test.ar>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := tt.stud.MailAddress()
			assert.Equal(t, tt.want, addr.String())
		})
	}

	t.Run("without email", func(t *testing.T) {
		stud := student.Student{DisplayName: "Ana"}
		assert.Empty(t, stud.MailAddress().Address)
		assert.False(t, stud.HasFamily())
	})
}
