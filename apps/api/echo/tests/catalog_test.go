package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/Brunoball/Cooperadora-sub000/apps/api/echo"
	"github.com/Brunoball/Cooperadora-sub000/core/family"
	"github.com/Brunoball/Cooperadora-sub000/core/ledger"
	"github.com/Brunoball/Cooperadora-sub000/core/period"
	"github.com/Brunoball/Cooperadora-sub000/core/pricing"
	"github.com/Brunoball/Cooperadora-sub000/core/receipt"
	"github.com/Brunoball/Cooperadora-sub000/core/student"
	testutil "github.com/Brunoball/Cooperadora-sub000/tests"
)

func Test_pricingApi_categoryPrice(t *testing.T) {
	cat := testutil.CreateCategory(t, priceRepo, "External", 60000, 600000)
	ana := testutil.CreateStudent(t, studRepo, "Ana", "", cat.ID)
	orphan := testutil.CreateStudent(t, studRepo, "Orphan", "", 8888)

	path := func(id int64) string { return fmt.Sprintf("/category-price?studentId=%d", id) }
	tests := []httpTest{
		{
			name: "price", path: path(ana.ID), wantCode: http.StatusOK,
			wantData: marchallObj(t, pricing.Price{Monthly: 60000, Annual: 600000, CategoryName: "External"}),
		},
		{
			name: "missing category", path: path(orphan.ID), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, LedgerErrorResponse{
				Error:     "CategoryNotFound",
				Conflicts: []ledger.Conflict{},
				Message:   fmt.Sprintf("category 8888 of student %d", orphan.ID),
			}),
		},
		{
			name: "unknown student", path: path(424242), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
		{
			name: "missing student", path: "/category-price", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"studentId": "this field is required"}),
		},
	}
	runTests(t, tests)
}

func Test_pricingApi_enrollmentFee(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")
	fee := func(amount int64) []byte { return marchallObj(t, EnrollmentFeeRequest{Amount: &amount}) }

	tests := []httpTest{
		{
			name: "negative", method: http.MethodPost, path: "/enrollment-fee", body: fee(-1),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"amount": "amount must be a non-negative whole amount"}),
		},
		{
			name: "missing", method: http.MethodPost, path: "/enrollment-fee", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"amount": "this field is required"}),
		},
		{
			name: "update", method: http.MethodPost, path: "/enrollment-fee", body: fee(18000),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, EnrollmentFeeResponse{Amount: 18000, EffectiveFrom: today}),
		},
		{
			name: "current", path: "/enrollment-fee", wantCode: http.StatusOK,
			wantData: marchallObj(t, EnrollmentFeeResponse{Amount: 18000, EffectiveFrom: today}),
		},
	}
	runTests(t, tests)
}

func Test_familyApi_info(t *testing.T) {
	cat := testutil.CreateCategory(t, priceRepo, "internal", 50000, 500000)
	ana := testutil.CreateStudent(t, studRepo, "Ana", "", cat.ID)
	beto := testutil.CreateStudent(t, studRepo, "Beto", "", cat.ID)
	caro := testutil.CreateStudent(t, studRepo, "Caro", "", cat.ID)
	solo := testutil.CreateStudent(t, studRepo, "Solo", "", cat.ID)
	fam := testutil.CreateFamily(t, famRepo, "Perez", []student.Student{ana, beto, caro}, caro.ID)

	path := func(id int64) string { return fmt.Sprintf("/family-info?studentId=%d", id) }
	tests := []httpTest{
		{
			name: "family", path: path(beto.ID), wantCode: http.StatusOK,
			wantData: marchallObj(t, family.Info{
				HasFamily: true,
				FamilyID:  &fam.ID,
				ActiveMembers: []family.Member{
					{StudentID: ana.ID, DisplayName: "Ana", Active: true},
					{StudentID: beto.ID, DisplayName: "Beto", Active: true},
				},
			}),
		},
		{
			name: "no family", path: path(solo.ID), wantCode: http.StatusOK,
			wantData: marchallObj(t, family.Info{ActiveMembers: []family.Member{}}),
		},
		{
			name: "unknown student", path: path(424242), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
	}
	runTests(t, tests)
}

func Test_receiptApi_retrieve(t *testing.T) {
	cat := testutil.CreateCategory(t, priceRepo, "internal", 50000, 500000)
	ana := testutil.CreateStudent(t, studRepo, "Ana Perez", "", cat.ID)

	runTests(t, []httpTest{{
		name: "commit", method: http.MethodPost, path: "/ledger/commit",
		body:     marchallObj(t, ledgerBody(t, ana.ID, "Month8", "Month7")),
		wantCode: http.StatusCreated,
	}})

	req, rec := newRequest(http.MethodGet, fmt.Sprintf("/receipt?studentId=%d&year=2024", ana.ID))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var r receipt.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, ana.ID, r.StudentID)
	assert.Equal(t, "Ana Perez", r.StudentName)
	assert.Equal(t, []period.Period{period.Month(7), period.Month(8)}, r.Periods)
	assert.Equal(t, int64(100000), r.Total)
	assert.Equal(t, "$100.000,00", r.FormattedTotal)
	assert.Equal(t, "July, August 2024", r.PeriodLabel)

	runTests(t, []httpTest{{
		name: "year out of range", path: fmt.Sprintf("/receipt?studentId=%d&year=1999", ana.ID),
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, LedgerErrorResponse{Error: "InvalidPeriodSelection", Conflicts: []ledger.Conflict{}, Message: "year 1999 outside 2000-2100"}),
	}})
}
