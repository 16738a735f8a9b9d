package xmldoc

import "testing"

// The same element shows up under different namespace prefixes depending
// on which endpoint served it; lookups must only see the local name.
func TestLocalNameMatchingAcrossPrefixes(t *testing.T) {
	docs := []struct {
		name string
		xml  string
	}{
		{"pudyn_prefix", `<pudyn:ProductUsageDyn xmlns:pudyn="urn:a" xmlns:dd="urn:b"><dd:TotalImpressions>42</dd:TotalImpressions></pudyn:ProductUsageDyn>`},
		{"other_prefix", `<x:ProductUsageDyn xmlns:x="urn:c" xmlns:y="urn:d"><y:TotalImpressions>42</y:TotalImpressions></x:ProductUsageDyn>`},
		{"no_prefix", `<ProductUsageDyn><TotalImpressions>42</TotalImpressions></ProductUsageDyn>`},
	}
	for _, tt := range docs {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.xml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := doc.IntOf("TotalImpressions"); got != 42 {
				t.Errorf("IntOf(TotalImpressions) = %d, want 42", got)
			}
		})
	}
}

func TestFirstAndAll(t *testing.T) {
	doc, err := Parse([]byte(`<root><item>a</item><wrap><item>b</item></wrap><item>c</item></root>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.TextOf("item"); got != "a" {
		t.Errorf("TextOf(item) = %q, want %q", got, "a")
	}
	all := doc.All("item")
	if len(all) != 3 {
		t.Fatalf("All(item) count = %d, want 3", len(all))
	}
	want := []string{"a", "b", "c"}
	for i, n := range all {
		if n.Text != want[i] {
			t.Errorf("All(item)[%d] = %q, want %q", i, n.Text, want[i])
		}
	}
}

func TestChildTextScoping(t *testing.T) {
	doc, err := Parse([]byte(`<root><Name>outer</Name><Adapter><Name>eth0</Name></Adapter></root>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.ChildText("Adapter", "Name"); got != "eth0" {
		t.Errorf("ChildText(Adapter, Name) = %q, want %q", got, "eth0")
	}
	if got := doc.ChildText("Missing", "Name"); got != "" {
		t.Errorf("ChildText(Missing, Name) = %q, want empty", got)
	}
}

func TestIntOfDefaultsToZero(t *testing.T) {
	doc, err := Parse([]byte(`<root><n>abc</n></root>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.IntOf("n"); got != 0 {
		t.Errorf("IntOf(non-numeric) = %d, want 0", got)
	}
	if got := doc.IntOf("missing"); got != 0 {
		t.Errorf("IntOf(missing) = %d, want 0", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not xml at all")); err == nil {
		t.Error("expected error for non-XML input")
	}
	if _, err := Parse([]byte("<unclosed>")); err == nil {
		t.Error("expected error for truncated XML")
	}
}

func TestTextIsTrimmed(t *testing.T) {
	doc, err := Parse([]byte("<root><v>\n  hello \n</v></root>"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.TextOf("v"); got != "hello" {
		t.Errorf("TextOf(v) = %q, want %q", got, "hello")
	}
}
