package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_attendanceApi(t *testing.T) {
	env, server := setup(t)
	teacher := testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	outsider := testutil.CreateUser(t, env, user.RoleTeacher, "outsider")
	c := testutil.CreateClassroom(t, env, "1A", teacher.ID)
	student := testutil.AddMembership(t, env, testutil.CreateUser(t, env, user.RoleStudent, "student", "parent@test.cd"), c.ID)
	other := testutil.AddMembership(t, env, testutil.CreateUser(t, env, user.RoleStudent, "other"), c.ID)

	teacherToken := getToken(t, env, teacher)
	studentToken := getToken(t, env, student)
	base := "/v1/classrooms/" + itoa(c.ID) + "/attendance"
	markPath := base + "/" + itoa(student.ID)

	tests := []httpTest{
		{name: "mark: auth required", method: http.MethodPut, path: markPath, body: []byte(`{"status": "absent"}`), wantCode: http.StatusUnauthorized},
		{
			name: "mark: outsider", method: http.MethodPut, path: markPath, token: getToken(t, env, outsider),
			body: []byte(`{"status": "absent"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "mark: student", method: http.MethodPut, path: markPath, token: studentToken,
			body: []byte(`{"status": "present"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "mark: status required", method: http.MethodPut, path: markPath, token: teacherToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"status": "this field is required"}`),
		},
		{
			name: "mark: invalid status", method: http.MethodPut, path: markPath, token: teacherToken,
			body: []byte(`{"status": "sick"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status": "status must be one of: present, absent, late"}`),
		},
		{
			name: "mark: invalid date", method: http.MethodPut, path: markPath, token: teacherToken,
			body: []byte(`{"status": "absent", "date": "15/03/2021"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"date": "date must be a valid date (YYYY-MM-DD)"}`),
		},
		{name: "sheet: invalid date", path: base + "?date=yesterday", token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "sheet: student", path: base, token: studentToken, wantCode: http.StatusForbidden},
	}
	runHTTPTests(t, server, tests)

	mark := func(t *testing.T, status string) attendance.Attendance {
		rec := serve(server, httpTest{
			method: http.MethodPut, path: markPath, token: teacherToken,
			body: marchallObj(t, attendance.MarkRequest{Status: status, Date: "2021-03-15"}),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var att attendance.Attendance
		unmarchall(t, rec, &att)
		return att
	}

	first := mark(t, "absent")
	second := mark(t, "late")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, attendance.StatusLate, second.Status)
	assert.Equal(t, "2021-03-15", second.Day.Format("2006-01-02"))

	t.Run("sheet", func(t *testing.T) {
		rec := serve(server, httpTest{path: base + "?date=2021-03-15", token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sheet []echoapi.StudentAttendance
		unmarchall(t, rec, &sheet)
		require.Len(t, sheet, 2)
		assert.Equal(t, other.ID, sheet[0].Student.ID)
		assert.Nil(t, sheet[0].Attendance)
		assert.Equal(t, student.ID, sheet[1].Student.ID)
		if assert.NotNil(t, sheet[1].Attendance) {
			assert.Equal(t, attendance.StatusLate, sheet[1].Attendance.Status)
		}
	})

	t.Run("own", func(t *testing.T) {
		rec := serve(server, httpTest{path: base + "/me", token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var atts []attendance.Attendance
		unmarchall(t, rec, &atts)
		if assert.Len(t, atts, 1) {
			assert.Equal(t, first.ID, atts[0].ID)
		}
	})

	t.Run("notify", func(t *testing.T) {
		env.Mail.Reset()
		rec := serve(server, httpTest{
			method: http.MethodPost, path: markPath + "/notify", token: teacherToken,
			body: marchallObj(t, attendance.NotifyRequest{Date: "2021-03-15"}),
		})
		checkCodeAndData(t, httpTest{wantData: marchallObj(t, echoapi.NotifyResponse{Sent: true})}, rec)
		msgs := env.Mail.SentMessages()
		if assert.Len(t, msgs, 1) {
			assert.Equal(t, "parent@test.cd", msgs[0].To[0].Address)
		}

		// nothing recorded on that day
		rec = serve(server, httpTest{
			method: http.MethodPost, path: markPath + "/notify", token: teacherToken,
			body: marchallObj(t, attendance.NotifyRequest{Date: "2021-03-16"}),
		})
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attendance not found"})}, rec)
	})

	t.Run("guardian email", func(t *testing.T) {
		rec := serve(server, httpTest{
			method: http.MethodPut, path: "/v1/users/" + itoa(other.ID) + "/guardian-email", token: teacherToken,
			body: marchallObj(t, echoapi.GuardianEmailRequest{GuardianEmail: "Guardian@Test.cd"}),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		unmarchall(t, rec, &got)
		assert.Equal(t, "guardian@test.cd", got.GuardianEmail)

		rec = serve(server, httpTest{
			method: http.MethodPut, path: "/v1/users/" + itoa(other.ID) + "/guardian-email", token: getToken(t, env, outsider),
			body: marchallObj(t, echoapi.GuardianEmailRequest{GuardianEmail: "x@test.cd"}),
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_attendanceApi_localDay(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	env, server := setup(t, func(conf *core.Config) { conf.Location = est })
	teacher := testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	c := testutil.CreateClassroom(t, env, "1A", teacher.ID)
	student := testutil.AddMembership(t, env, testutil.CreateUser(t, env, user.RoleStudent, "student"), c.ID)
	teacherToken := getToken(t, env, teacher)
	base := "/v1/classrooms/" + itoa(c.ID) + "/attendance"

	// 20:00 EST on the 14th is already the 15th in UTC
	attendance.NowFunc = func() time.Time { return time.Date(2021, 3, 14, 20, 0, 0, 0, est) }
	defer func() { attendance.NowFunc = time.Now }()

	rec := serve(server, httpTest{
		method: http.MethodPut, path: base + "/" + itoa(student.ID), token: teacherToken,
		body: []byte(`{"status": "absent"}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var today attendance.Attendance
	unmarchall(t, rec, &today)
	assert.Equal(t, "2021-03-14", today.Day.Format("2006-01-02"))

	rec = serve(server, httpTest{
		method: http.MethodPut, path: base + "/" + itoa(student.ID), token: teacherToken,
		body: []byte(`{"status": "late", "date": "2021-03-14"}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dated attendance.Attendance
	unmarchall(t, rec, &dated)
	assert.Equal(t, today.ID, dated.ID)

	for _, path := range []string{base, base + "?date=2021-03-14"} {
		rec = serve(server, httpTest{path: path, token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sheet []echoapi.StudentAttendance
		unmarchall(t, rec, &sheet)
		if assert.Len(t, sheet, 1) && assert.NotNil(t, sheet[0].Attendance, path) {
			assert.Equal(t, attendance.StatusLate, sheet[0].Attendance.Status)
		}
	}
}
