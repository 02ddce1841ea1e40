package handler

import (
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/yudduy/cma-analysis/query-service/internal/charts"
	"github.com/yudduy/cma-analysis/query-service/internal/service"
)

type chartRef struct {
	Name string
	URL  string
}

type pageData struct {
	*service.Dashboard
	Selected string
	Charts   map[string]chartRef
}

func newPageData(d *service.Dashboard) pageData {
	refs := make(map[string]chartRef)
	q := url.Values{"version": {d.Version}}.Encode()
	for _, name := range charts.Names() {
		refs[name] = chartRef{Name: name, URL: "/charts/" + name + ".svg?" + q}
	}
	refs["activity"] = chartRef{Name: "activity", URL: "/charts/activity.svg"}
	return pageData{Dashboard: d, Selected: d.Version, Charts: refs}
}

var pageFuncs = template.FuncMap{
	"num": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.3f", *v)
	},
	"pval": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.4f", *v)
	},
	"ts": func(v *time.Time) string {
		if v == nil {
			return "n/a"
		}
		return v.UTC().Format("2006-01-02 15:04:05")
	},
	"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f3": func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"chart": func(refs map[string]chartRef, name string) string {
		return refs[name].URL
	},
}

var dashboardPage = template.Must(template.New("dashboard").Funcs(pageFuncs).Parse(dashboardHTML))

var emptyPage = template.Must(template.New("empty").Parse(emptyHTML))

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CMA Balance Check</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0 auto; max-width: 1200px; padding: 1rem 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #666; font-size: 0.9rem; }
section { margin-top: 2rem; border-top: 1px solid #ddd; padding-top: 1rem; }
table { border-collapse: collapse; margin: 0.5rem 0 1rem; font-size: 0.9rem; }
th { background: #f7f7f7; text-align: center; }
th, td { border: 1px solid #ddd; padding: 0.3rem 0.6rem; }
td.n { text-align: right; font-variant-numeric: tabular-nums; }
tbody tr:hover { background: #eaf2ff; }
.row { display: flex; flex-wrap: wrap; gap: 2rem; align-items: flex-start; }
img.chart { max-width: 100%; border: 1px solid #eee; }
ul.insights li { margin: 0.2rem 0; }
</style>
</head>
<body>
<h1>📊 Real-time Balance Check</h1>
`

const emptyHTML = pageHead + `<p class="meta">No tracker data has been collected yet. Check back once events arrive.</p>
</body>
</html>
`

const dashboardHTML = pageHead + `<p class="meta">Source: {{.Source}} · revision {{.Revision}} · generated {{.GeneratedAt.Format "2006-01-02 15:04:05 UTC"}}{{if .ExcludedVisitors}} · {{.ExcludedVisitors}} bot visitors excluded{{end}}</p>

<form method="get" action="/">
<label for="version">Please select a randomization version we have tested 🔽</label>
<select id="version" name="version" onchange="this.form.submit()">
{{- range .Versions}}
<option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
{{- end}}
</select>
<noscript><button type="submit">Show</button></noscript>
</form>

<section>
<h2>Users per Group</h2>
<div class="row">
<table>
<thead><tr><th>Group</th><th>Unique visitors</th></tr></thead>
<tbody>
{{- range .UsersPerGroup}}
<tr><td>{{.Group}}</td><td class="n">{{.Count}}</td></tr>
{{- end}}
</tbody>
</table>
<img class="chart" src="{{chart .Charts "users"}}" alt="Users per group">
</div>
</section>

<section>
<h2>Popup Views</h2>
<div class="row">
<table>
<thead><tr><th>Group</th><th>Popup version</th><th>Views</th></tr></thead>
<tbody>
{{- range .Popups}}
<tr><td>{{.Group}}</td><td>{{.Popup}}</td><td class="n">{{.Count}}</td></tr>
{{- else}}
<tr><td colspan="3">No popup view events available.</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Popups}}
<img class="chart" src="{{chart .Charts "popups"}}" alt="Popup views per group">
{{- end}}
</div>
</section>

<section>
<h2>📧 Newsletter Signup Analysis</h2>
<div class="row">
<div>
<h3>Newsletter Signup Statistics</h3>
<table>
<thead><tr><th>Group</th><th>Total Users</th><th>Avg Signups</th><th>Std Dev</th><th>Total Signups</th></tr></thead>
<tbody>
{{- range .Newsletter.Groups}}
<tr><td>{{.Group}}</td><td class="n">{{.TotalUsers}}</td><td class="n">{{f3 .AvgSignups}}</td><td class="n">{{num .StdDev}}</td><td class="n">{{.TotalSignups}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
<div>
<h3>Statistical Comparison</h3>
<table>
<thead><tr><th>Comparison</th><th>t-statistic</th><th>p-value</th></tr></thead>
<tbody>
{{- range .Newsletter.Tests}}
<tr><td>{{.Comparison}}</td><td class="n">{{num .T}}</td><td class="n">{{pval .P}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
</div>
<img class="chart" src="{{chart .Charts "newsletter"}}" alt="Newsletter signup rates">
<h3>Key Newsletter Insights</h3>
<ul class="insights">
<li>Total users analyzed: {{.Insights.TotalUsers}}</li>
<li>Total newsletter signups: {{.Insights.TotalSignups}}</li>
<li>Overall conversion rate: {{.Insights.ConversionRate}}</li>
</ul>
</section>

<section>
<h2>Group Overview</h2>
<div class="row">
<table>
<thead><tr><th>Group</th><th>Sessions mean</th><th>Visitors</th><th>Page views mean</th><th>Page views</th><th>Popup views mean</th><th>Popup views</th></tr></thead>
<tbody>
{{- range .Overview.Groups}}
<tr><td>{{.Group}}</td><td class="n">{{f3 .SessionsMean}}</td><td class="n">{{.Users}}</td><td class="n">{{f3 .PageViewsMean}}</td><td class="n">{{.PageViewsSum}}</td><td class="n">{{f3 .PopupViewsMean}}</td><td class="n">{{.PopupViewsSum}}</td></tr>
{{- end}}
</tbody>
</table>
<table>
<thead><tr><th>Comparison</th><th>Sessions diff</th><th>Page views diff</th></tr></thead>
<tbody>
{{- range .Overview.Diffs}}
<tr><td>{{.Comparison}}</td><td class="n">{{f3 .SessionsDiff}}</td><td class="n">{{f3 .PageViewsDiff}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
</section>

<section>
<h2>Balance Check</h2>
{{- range .Balance}}
<h3>Balance Check: {{.Label}}</h3>
<div class="row">
<table>
<thead><tr><th>Group</th><th>N</th><th>Mean</th><th>SD{{if .Datetime}} (days){{end}}</th></tr></thead>
<tbody>
{{- $dt := .Datetime}}
{{- range .Summary}}
<tr><td>{{.Group}}</td><td class="n">{{.N}}</td>
{{- if $dt}}<td>{{ts .MeanTime}}</td><td class="n">{{num .SDDays}}</td>
{{- else}}<td class="n">{{num .Mean}}</td><td class="n">{{num .SD}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
<table>
<thead><tr><th>Group 1</th><th>Group 2</th><th>p-value</th></tr></thead>
<tbody>
{{- range .PValues}}
<tr><td>{{.GroupA}}</td><td>{{.GroupB}}</td><td class="n">{{pval .P}}</td></tr>
{{- else}}
<tr><td colspan="3">No data available for this variable.</td></tr>
{{- end}}
</tbody>
</table>
</div>
{{- end}}
</section>

<section>
<h2>📊 User Demographics</h2>
{{- range .Demographics}}
<h3>Distribution by {{.Label}}</h3>
<div class="row">
<table>
<thead><tr><th>{{.Label}}</th><th>Group</th><th>Count</th><th>Percentage (%)</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.Value}}</td><td>{{.Group}}</td><td class="n">{{.Count}}</td><td class="n">{{f2 .Percentage}}</td></tr>
{{- else}}
<tr><td colspan="4">No data available.</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Rows}}
<img class="chart" src="{{chart $.Charts (printf "demographics-%s" .Name)}}" alt="Distribution by {{.Label}}">
{{- end}}
</div>
{{- end}}
</section>

<section>
<h2>📱 Screen Dimensions</h2>
<div class="row">
<div>
<h3>Screen Size Distribution</h3>
<table>
<thead><tr><th>Screen Size</th><th>Group</th><th>Count</th></tr></thead>
<tbody>
{{- range .Screens}}
<tr><td>{{.Size}}</td><td>{{.Group}}</td><td class="n">{{.Count}}</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Screens}}
<img class="chart" src="{{chart .Charts "screens"}}" alt="Screen sizes">
{{- end}}
</div>
<div>
<h3>Window Size Distribution</h3>
<table>
<thead><tr><th>Window Size</th><th>Group</th><th>Count</th></tr></thead>
<tbody>
{{- range .Windows}}
<tr><td>{{.Size}}</td><td>{{.Group}}</td><td class="n">{{.Count}}</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Windows}}
<img class="chart" src="{{chart .Charts "windows"}}" alt="Window sizes">
{{- end}}
</div>
</div>
</section>

<section>
<h2>🔗 Referral Source Analysis</h2>
{{- with .Referrals}}
{{- if .Rows}}
<ul class="insights">
<li>Total referral visits: {{$.Insights.ReferralVisits}}</li>
<li>Total conversions: {{$.Insights.ReferralSignups}}</li>
<li>Overall conversion rate: {{$.Insights.ReferralConversion}}</li>
</ul>
<table>
<thead><tr><th>Referrer</th><th>Group</th><th>Visits</th><th>Signups</th><th>Conversion rate (%)</th><th>Traffic share (%)</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.Category}}</td><td>{{.Group}}</td><td class="n">{{.Visits}}</td><td class="n">{{.Signups}}</td><td class="n">{{f2 .ConversionRate}}</td><td class="n">{{f2 .TrafficShare}}</td></tr>
{{- end}}
</tbody>
</table>
<div class="row">
<img class="chart" src="{{chart $.Charts "referral-traffic"}}" alt="Traffic by referrer">
<img class="chart" src="{{chart $.Charts "referral-conversion"}}" alt="Conversion by referrer">
</div>
<h3>Key Insights</h3>
<p>Top Traffic Sources:</p>
<ul class="insights">
{{- range $.Insights.TopTraffic}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- if $.Insights.TopConversion}}
<p>Best Converting Sources (min. 5 visits):</p>
<ul class="insights">
{{- range $.Insights.TopConversion}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- else}}
<p>No sources with sufficient visits for conversion analysis</p>
{{- end}}
{{- if .Tests}}
<table>
<thead><tr><th>Category</th><th>Comparison</th><th>t-statistic</th><th>p-value</th></tr></thead>
<tbody>
{{- range .Tests}}
<tr><td>{{.Category}}</td><td>{{.Comparison}}</td><td class="n">{{num .T}}</td><td class="n">{{pval .P}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
{{- else}}
<p>No referral data available for analysis.</p>
{{- end}}
{{- end}}
</section>

<section>
<h2>Activity</h2>
<img class="chart" src="{{chart .Charts "activity"}}" alt="Hourly tracker events">
</section>
</body>
</html>
`
