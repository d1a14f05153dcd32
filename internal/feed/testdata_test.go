package feed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/fetcher"
	"github.com/hubizz/hubizz/internal/model"
)

var longText = strings.Repeat("Gadgets and gear reviewed in depth. ", 10)

var rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:dc="http://purl.org/dc/elements/1.1/"
  xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>  Gear   Weekly </title>
  <link>https://gear.example.com</link>
  <description>Reviews of things</description>
  <language>en-us</language>
  <copyright>Gear Weekly 2026</copyright>
  <image><url>https://gear.example.com/logo.png</url><title>Gear Weekly</title><link>https://gear.example.com</link></image>
  <item>
    <title>The  best
      laptops of 2026</title>
    <link>https://gear.example.com/laptops</link>
    <guid>gear-1</guid>
    <pubDate>Mon, 02 Feb 2026 10:00:00 GMT</pubDate>
    <dc:creator>Jane Doe</dc:creator>
    <category>Tech</category>
    <category>  </category>
    <enclosure url="https://cdn.example.com/laptops.jpg" type="image/jpeg" length="1000"/>
    <description>Short teaser</description>
    <content:encoded><![CDATA[<p>` + longText + `</p>]]></content:encoded>
  </item>
  <item>
    <title>Too short</title>
    <link>https://gear.example.com/short</link>
    <guid>gear-2</guid>
    <description>tiny</description>
  </item>
  <item>
    <title>Desk setups</title>
    <link>https://gear.example.com/desks</link>
    <guid>gear-3</guid>
    <description><![CDATA[<p><img src="https://cdn.example.com/desk.png" alt="desk"> ` + longText + `</p>]]></description>
  </item>
  <item>
    <title>Headphones</title>
    <link>https://gear.example.com/headphones</link>
    <guid>gear-4</guid>
    <media:thumbnail url="https://cdn.example.com/headphones-thumb.jpg"/>
    <description>` + longText + `</description>
  </item>
</channel>
</rss>`

var atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Home Atom</title>
  <link href="https://home.example.com/"/>
  <updated>2026-03-01T12:00:00Z</updated>
  <id>urn:home</id>
  <entry>
    <title>Kitchen upgrades</title>
    <link href="https://home.example.com/kitchen"/>
    <id>urn:home:1</id>
    <updated>2026-03-01T12:00:00Z</updated>
    <author><name>Sam Lee</name></author>
    <content type="html">` + longText + `</content>
  </entry>
</feed>`

// fakeGetter serves canned responses keyed by URL.
type fakeGetter struct {
	pages map[string]*fetcher.Response
	calls []string
}

func (f *fakeGetter) Get(_ context.Context, url string) (*fetcher.Response, error) {
	f.calls = append(f.calls, url)
	resp, ok := f.pages[url]
	if !ok {
		return nil, model.Wrap(model.ErrNotFound, eris.Errorf("no page %s", url))
	}
	if resp.URL == "" {
		resp.URL = url
	}
	return resp, nil
}

func page(contentType, body string) *fetcher.Response {
	return &fetcher.Response{StatusCode: 200, ContentType: contentType, Body: []byte(body)}
}
