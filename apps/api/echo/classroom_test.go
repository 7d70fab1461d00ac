package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_classroomApi(t *testing.T) {
	env, server := setup(t)
	admin := testutil.CreateUser(t, env, user.RoleAdmin, "admin")
	teacher := testutil.CreateUser(t, env, user.RoleTeacher, "teacher")
	student := testutil.CreateUser(t, env, user.RoleStudent, "student")
	c1 := testutil.CreateClassroom(t, env, "1A", teacher.ID)
	c2 := testutil.CreateClassroom(t, env, "1B")
	student = testutil.AddMembership(t, env, student, c2.ID)

	adminToken := getToken(t, env, admin)
	teacherToken := getToken(t, env, teacher)
	studentToken := getToken(t, env, student)

	tests := []httpTest{
		{name: "auth required", path: "/v1/classrooms", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "list: admin", path: "/v1/classrooms", token: adminToken, wantData: marchallObj(t, []classroom.Classroom{c1, c2})},
		{name: "list: teacher", path: "/v1/classrooms", token: teacherToken, wantData: marchallObj(t, []classroom.Classroom{c1})},
		{name: "list: student", path: "/v1/classrooms", token: studentToken, wantData: marchallObj(t, []classroom.Classroom{c2})},
		{name: "retrieve", path: "/v1/classrooms/" + itoa(c2.ID), token: studentToken, wantData: marchallObj(t, c2)},
		{name: "retrieve: not assigned", path: "/v1/classrooms/" + itoa(c1.ID), token: studentToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "retrieve: unknown", path: "/v1/classrooms/999", token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "classroom not found"})},
		{name: "retrieve: invalid id", path: "/v1/classrooms/abc", token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "students", path: "/v1/classrooms/" + itoa(c2.ID) + "/students", token: adminToken, wantData: marchallObj(t, []user.User{student})},
		{name: "students: teacher of another classroom", path: "/v1/classrooms/" + itoa(c2.ID) + "/students", token: teacherToken, wantCode: http.StatusForbidden},
		{
			name: "create: admin required", method: http.MethodPost, path: "/v1/classrooms", token: teacherToken,
			body: []byte(`{"name": "2A"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "create: name required", method: http.MethodPost, path: "/v1/classrooms", token: adminToken,
			body: []byte(`{"name": " "}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name: "create: not a teacher", method: http.MethodPost, path: "/v1/classrooms", token: adminToken,
			body: marchallObj(t, classroom.NewClassroom{Name: "2A", TeacherID: &student.ID}), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"teacher_id": "user is not a teacher"}`),
		},
	}
	runHTTPTests(t, server, tests)

	t.Run("create", func(t *testing.T) {
		rec := serve(server, httpTest{
			method: http.MethodPost, path: "/v1/classrooms", token: adminToken,
			body: marchallObj(t, classroom.NewClassroom{Name: " 2A ", Description: "Second grade", TeacherID: &teacher.ID}),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got classroom.Classroom
		unmarchall(t, rec, &got)
		assert.Equal(t, "2A", got.Name)
		assert.Equal(t, teacher.ID, got.PrimaryTeacherID())
	})

	t.Run("update", func(t *testing.T) {
		rec := serve(server, httpTest{
			method: http.MethodPut, path: "/v1/classrooms/" + itoa(c1.ID), token: adminToken,
			body: marchallObj(t, classroom.UpdateClassroom{Name: "1A bis"}),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got classroom.Classroom
		unmarchall(t, rec, &got)
		assert.Equal(t, "1A bis", got.Name)
		assert.Nil(t, got.TeacherID)
	})
}
