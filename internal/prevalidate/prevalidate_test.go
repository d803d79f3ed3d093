package prevalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-qualifier/internal/model"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate model.Candidate
		want      int
	}{
		{
			name:      "empty candidate",
			candidate: model.Candidate{},
			want:      0,
		},
		{
			name: "complete candidate hits the cap",
			candidate: model.Candidate{
				Name:    "Joe's Hardware",
				Address: "123 Oak St, Springfield, IL 62701",
				Phone:   "(217) 555-0199",
				Website: "joeshardware.com",
			},
			want: 100,
		},
		{
			name: "name only",
			candidate: model.Candidate{
				Name: "Joe's Hardware",
			},
			want: 25,
		},
		{
			name: "generic-only name scores zero",
			candidate: model.Candidate{
				Name: "Test Business LLC",
			},
			want: 0,
		},
		{
			name: "placeholder website scores zero for that component",
			candidate: model.Candidate{
				Name:    "Joe's Hardware",
				Website: "https://example.com",
			},
			want: 25,
		},
		{
			name: "fake phone scores zero for that component",
			candidate: model.Candidate{
				Name:  "Joe's Hardware",
				Phone: "555-555-5555",
			},
			want: 25,
		},
		{
			name: "partial address credit",
			candidate: model.Candidate{
				Address: "123 Oak St",
			},
			want: 15, // street number 8 + street type 7
		},
		{
			name: "full address credit",
			candidate: model.Candidate{
				Address: "123 Oak St, Springfield, IL 62701",
			},
			want: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Score(tt.candidate))
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	c := model.Candidate{
		Name:    "Midwest Auto Repair",
		Address: "44 Elm Ave, Peoria, IL 61602",
		Phone:   "309-555-0142",
		Website: "midwestautorepair.com",
	}
	first := Score(c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(c))
	}
}

func TestIsFakePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phone string
		want  bool
	}{
		{"555-555-5555", true},  // reserved area code
		{"000-123-4567", true},  // reserved area code
		{"111-123-4567", true},  // reserved area code
		{"999-123-4567", true},  // reserved area code
		{"217-000-1234", true},  // 000 exchange
		{"217-555-5555", true},  // 555-5555 pair
		{"(217) 555-0199", false},
		{"1-217-555-0199", false},
		{"217-867-5309", false},
		{"12345", false}, // malformed, not classifiable
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFakePhone(tt.phone))
		})
	}
}

func TestDigits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2175550199", Digits("(217) 555-0199"))
	assert.Equal(t, "12175550199", Digits("+1 (217) 555-0199"))
	assert.Equal(t, "", Digits("no digits here"))
}

func TestIsPlaceholderDomain(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPlaceholderDomain("example.com"))
	assert.True(t, IsPlaceholderDomain("www.example.com"))
	assert.True(t, IsPlaceholderDomain("LOCALHOST"))
	assert.False(t, IsPlaceholderDomain("joeshardware.com"))
}

func TestIsGenericName(t *testing.T) {
	t.Parallel()

	assert.True(t, IsGenericName(""))
	assert.True(t, IsGenericName("Business LLC"))
	assert.True(t, IsGenericName("test company"))
	assert.False(t, IsGenericName("Joe's Hardware"))
	assert.False(t, IsGenericName("Acme Services")) // one non-generic token
}
