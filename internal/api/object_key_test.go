package api

import "testing"

func TestIsUserResumeObjectKey(t *testing.T) {
	cases := []struct {
		name string
		user uint
		key  string
		want bool
	}{
		{"own text", 7, "resumes/7/abc.txt", true},
		{"own latex", 7, "resumes/7/abc.TEX", true},
		{"other user", 7, "resumes/8/abc.txt", false},
		{"prefix collision", 7, "resumes/77/abc.txt", false},
		{"traversal", 7, "resumes/7/../8/abc.txt", false},
		{"double slash", 7, "resumes/7//abc.txt", false},
		{"backslash", 7, `resumes/7/a\b.txt`, false},
		{"wrong extension", 7, "resumes/7/abc.pdf", false},
		{"empty", 7, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isUserResumeObjectKey(tc.user, tc.key); got != tc.want {
				t.Fatalf("isUserResumeObjectKey(%d, %q) = %v, want %v", tc.user, tc.key, got, tc.want)
			}
		})
	}
}
